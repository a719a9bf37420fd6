package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// Ledger appends events to and reads events from a history file. The file is
// append-only: nothing here ever truncates or rewrites existing lines, and once
// an order leaves the order store the ledger is its only durable record.
type Ledger struct {
	path string
}

// New returns a ledger over the given history file path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one event as a single line. For fill events it first scans the
// existing file and silently skips the write when the same orderID already has
// an event of the same kind, so repeated scan cycles cannot double-count a fill.
func (l *Ledger) Append(e Event) error {
	if e.Kind.IsFill() {
		dup, err := l.hasEvent(e.Kind, e.OrderID)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(e) + "\n"); err != nil {
		return fmt.Errorf("append history line: %w", err)
	}
	return nil
}

// ReadAll parses the whole history file. Unparsable lines (partial writes,
// foreign content) are skipped, not fatal. A missing file reads as empty.
func (l *Ledger) ReadAll() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := ParseLine(scanner.Text()); ok {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read history file: %w", err)
	}
	return events, nil
}

func (l *Ledger) hasEvent(kind Kind, orderID string) (bool, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := ParseLine(scanner.Text()); ok && e.Kind == kind && e.OrderID == orderID {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read history file: %w", err)
	}
	return false, nil
}
