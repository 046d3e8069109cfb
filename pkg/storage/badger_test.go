package storage

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/orneryd/nornicdb-nearest/pkg/logging"
	"github.com/orneryd/nornicdb-nearest/pkg/nearest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewCentroidSet(t *testing.T) {
	set, err := NewCentroidSet("pair", []nearest.Vector{{0, 0}, {10, 10}})
	if err != nil {
		t.Fatalf("NewCentroidSet failed: %v", err)
	}
	if set.Dim != 2 || set.Len() != 2 {
		t.Errorf("Dim=%d Len=%d, want 2 and 2", set.Dim, set.Len())
	}
	if set.Version != nearest.Fingerprint([]float32{0, 0, 10, 10}, 2) {
		t.Error("Version should be the fingerprint of the flattened values")
	}
	if got := set.Vectors(); !reflect.DeepEqual(got, []nearest.Vector{{0, 0}, {10, 10}}) {
		t.Errorf("Vectors() = %v", got)
	}

	if _, err := NewCentroidSet("empty", nil); !errors.Is(err, nearest.ErrEmptyCentroids) {
		t.Errorf("expected ErrEmptyCentroids, got %v", err)
	}
	if _, err := NewCentroidSet("ragged", []nearest.Vector{{1, 2}, {3}}); !errors.Is(err, nearest.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store := openTestStore(t)

	set, _ := NewCentroidSet("clusters", []nearest.Vector{{1, 2, 3}, {4, 5, 6}})
	if err := store.Save(set); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("clusters")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "clusters" || loaded.Dim != 3 {
		t.Errorf("unexpected record: %+v", loaded)
	}
	if !reflect.DeepEqual(loaded.Values, set.Values) {
		t.Errorf("Values = %v, want %v", loaded.Values, set.Values)
	}
	if loaded.Version != set.Version {
		t.Errorf("Version = %s, want %s", loaded.Version, set.Version)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestStore_Replace(t *testing.T) {
	store := openTestStore(t)

	first, _ := NewCentroidSet("c", []nearest.Vector{{1}})
	second, _ := NewCentroidSet("c", []nearest.Vector{{2}, {3}})
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load("c")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 || loaded.Version != second.Version {
		t.Errorf("expected replacement, got %+v", loaded)
	}
}

func TestStore_ListDelete(t *testing.T) {
	store := openTestStore(t)

	for _, name := range []string{"b", "a", "c"} {
		set, _ := NewCentroidSet(name, []nearest.Vector{{1}})
		if err := store.Save(set); err != nil {
			t.Fatal(err)
		}
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b", "c"}) {
		t.Errorf("List() = %v", names)
	}

	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	names, _ = store.List()
	if !reflect.DeepEqual(names, []string{"a", "c"}) {
		t.Errorf("List() = %v", names)
	}
}

func TestStore_Validation(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.Load(""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if err := store.Save(&CentroidSet{Name: "a/b", Dim: 1, Values: []float32{1}}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if err := store.Save(&CentroidSet{Name: "odd", Dim: 2, Values: []float32{1, 2, 3}}); !errors.Is(err, ErrInvalidSet) {
		t.Errorf("expected ErrInvalidSet, got %v", err)
	}

	set := &CentroidSet{Name: "raw", Dim: 1, Values: []float32{4}}
	if err := store.Save(set); err != nil {
		t.Fatal(err)
	}
	if set.Version == "" {
		t.Error("Save should fill in a missing version")
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	var logs bytes.Buffer
	dir := t.TempDir()
	logger := logging.NewTextLogger(&logs, logging.ParseLevel("debug"))

	store, err := Open(dir, WithLogger(logger))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	set, _ := NewCentroidSet("durable", []nearest.Vector{{7, 8}})
	if err := store.Save(set); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()
	loaded, err := store.Load("durable")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Vectors(), []nearest.Vector{{7, 8}}) {
		t.Errorf("Vectors() = %v", loaded.Vectors())
	}
	if logs.Len() == 0 {
		t.Error("expected badger output through the logger")
	}
}

func TestSerialization(t *testing.T) {
	set := &CentroidSet{Name: "s", Dim: 2, Values: []float32{0.1, -3.5}, Version: "v"}
	data, err := serializeCentroidSet(set)
	if err != nil {
		t.Fatal(err)
	}
	got, err := deserializeCentroidSet(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Values, set.Values) {
		t.Errorf("Values = %v", got.Values)
	}
	if _, err := deserializeCentroidSet([]byte("junk")); err == nil {
		t.Error("expected decode error")
	}
	if nameFromKey(centroidKey("x")) != "x" {
		t.Error("key round trip failed")
	}
}
