package history

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a site has no recorded runs.
var ErrNotFound = errors.New("history not found")

// Store wraps Badger for run history.
type Store struct {
	db *badger.DB
}

// Open opens or creates a history store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a record under its site and timestamp.
func (s *Store) Append(rec *Record) error {
	if rec.Site == "" {
		return errors.New("history record has no site")
	}
	value, err := rec.Encode()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(rec.Site, rec.Timestamp), value)
	})
}

// List returns the records of a site, newest first. If limit is 0 or
// negative, all records are returned.
func (s *Store) List(site string, limit int) ([]Record, error) {
	prefix := MakeKeyPrefix(site)
	records := []Record{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Timestamps are positive, so their first byte is below 0xFF.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(rec.Decode); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the most recent record of a site.
func (s *Store) Latest(site string) (*Record, error) {
	records, err := s.List(site, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, site)
	}
	return &records[0], nil
}

// Sites returns every site with at least one record, sorted.
func (s *Store) Sites() ([]string, error) {
	seen := make(map[string]bool)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			site, _ := ParseKey(it.Item().Key())
			seen[site] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sites := make([]string, 0, len(seen))
	for site := range seen {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites, nil
}

// Clear removes the records of a site, or of every site when site is empty.
func (s *Store) Clear(site string) error {
	if site == "" {
		return s.db.DropAll()
	}
	return s.db.DropPrefix(MakeKeyPrefix(site))
}
