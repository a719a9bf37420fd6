package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a file-backed collection of tracked orders. The backing file holds a
// JSON array and is rewritten wholesale on every mutation via write-to-temp plus
// rename, so a crash mid-write never leaves a half-written file behind.
// Exactly one process is assumed to touch the file at a time.
type Store struct {
	path string
}

// NewStore returns a store over the given file path. The file does not need to
// exist yet; an absent file reads as an empty store.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// LoadAll reads every order from the backing file.
func (s *Store) LoadAll() ([]Order, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read orders file: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var orders []Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, fmt.Errorf("parse orders file: %w", err)
	}
	return orders, nil
}

// SaveAll atomically replaces the backing file with the given orders.
func (s *Store) SaveAll(orders []Order) error {
	if orders == nil {
		orders = []Order{}
	}
	raw, err := json.MarshalIndent(orders, "", "    ")
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace orders file: %w", err)
	}
	return nil
}

// Upsert inserts the order, or replaces the stored order with the same OrderID.
func (s *Store) Upsert(o Order) error {
	orders, err := s.LoadAll()
	if err != nil {
		return err
	}
	replaced := false
	for i := range orders {
		if orders[i].OrderID == o.OrderID {
			orders[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		orders = append(orders, o)
	}
	return s.SaveAll(orders)
}

// Remove deletes the order with the given OrderID. Removing an unknown id is a no-op.
func (s *Store) Remove(orderID string) error {
	orders, err := s.LoadAll()
	if err != nil {
		return err
	}
	kept := orders[:0]
	for _, o := range orders {
		if o.OrderID != orderID {
			kept = append(kept, o)
		}
	}
	return s.SaveAll(kept)
}

// Replace atomically swaps oldID for the replacement order. The repricing path
// uses this so a lineage never has two open orders in the file at once.
func (s *Store) Replace(oldID string, replacement Order) error {
	orders, err := s.LoadAll()
	if err != nil {
		return err
	}
	kept := orders[:0]
	for _, o := range orders {
		if o.OrderID != oldID {
			kept = append(kept, o)
		}
	}
	kept = append(kept, replacement)
	return s.SaveAll(kept)
}
