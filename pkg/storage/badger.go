// Package storage persists named centroid sets in BadgerDB.
//
// A centroid set is stored under "centroids/<name>" as a gob record holding
// the flattened scalars, their dimensionality and fingerprint. Saving a set
// under an existing name replaces it.
//
// Example:
//
//	store, err := storage.Open("/var/lib/nearest")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	set, _ := storage.NewCentroidSet("clusters", centroids)
//	if err := store.Save(set); err != nil {
//		return err
//	}
//	loaded, err := store.Load("clusters")
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicdb-nearest/pkg/logging"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

// Errors
var (
	ErrNotFound    = errors.New("storage: centroid set not found")
	ErrInvalidName = errors.New("storage: invalid centroid set name")
	ErrInvalidSet  = errors.New("storage: invalid centroid set")
)

// CentroidSet is a named, flattened set of centroids.
type CentroidSet struct {
	Name      string
	Dim       int
	Values    []float32
	Version   string
	UpdatedAt time.Time
}

// NewCentroidSet flattens centroids and fingerprints them.
func NewCentroidSet(name string, centroids []nearest.Vector) (*CentroidSet, error) {
	if len(centroids) == 0 {
		return nil, nearest.ErrEmptyCentroids
	}
	dim := centroids[0].Dim()
	flat, err := nearest.Flatten(centroids, dim)
	if err != nil {
		return nil, err
	}
	return &CentroidSet{
		Name:    name,
		Dim:     dim,
		Values:  flat,
		Version: nearest.Fingerprint(flat, dim),
	}, nil
}

// Len returns the number of centroids.
func (s *CentroidSet) Len() int {
	if s.Dim == 0 {
		return 0
	}
	return len(s.Values) / s.Dim
}

// Vectors splits the set into one Vector per centroid. The vectors share
// memory with Values.
func (s *CentroidSet) Vectors() []nearest.Vector {
	out := make([]nearest.Vector, s.Len())
	for i := range out {
		lo, hi := i*s.Dim, (i+1)*s.Dim
		out[i] = nearest.Vector(s.Values[lo:hi:hi])
	}
	return out
}

func (s *CentroidSet) validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if s.Dim <= 0 || len(s.Values) == 0 || len(s.Values)%s.Dim != 0 {
		return fmt.Errorf("%w: %d values with dimensionality %d", ErrInvalidSet, len(s.Values), s.Dim)
	}
	return nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Option configures a Store.
type Option func(*badger.Options)

// WithLogger routes BadgerDB's internal log output to l.
func WithLogger(l *logging.Logger) Option {
	return func(o *badger.Options) {
		*o = o.WithLogger(badgerLogger{l})
	}
}

// Store is a BadgerDB-backed centroid set store.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions(dir), opts)
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory(opts ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), opts)
}

func open(bopts badger.Options, opts []Option) (*Store, error) {
	bopts = bopts.WithLogger(nil)
	for _, opt := range opts {
		opt(&bopts)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Save writes set, replacing any set with the same name. UpdatedAt and a
// missing Version are filled in.
func (s *Store) Save(set *CentroidSet) error {
	if err := set.validate(); err != nil {
		return err
	}
	if set.Version == "" {
		set.Version = nearest.Fingerprint(set.Values, set.Dim)
	}
	set.UpdatedAt = time.Now().UTC()

	data, err := serializeCentroidSet(set)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(centroidKey(set.Name), data)
	})
}

// Load reads the set stored under name.
func (s *Store) Load(name string) (*CentroidSet, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var set *CentroidSet
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(centroidKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			set, err = deserializeCentroidSet(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// List returns the names of all stored sets in key order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(centroidPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, nameFromKey(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return names, err
}

// Delete removes the set stored under name.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := centroidKey(name)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger adapts logging.Logger to badger.Logger.
type badgerLogger struct {
	l *logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.WarnContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.DebugContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
