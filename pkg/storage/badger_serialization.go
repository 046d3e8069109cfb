// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
)

const centroidPrefix = "centroids/"

// centroidKey maps a set name to its BadgerDB key.
func centroidKey(name string) []byte {
	return []byte(centroidPrefix + name)
}

// nameFromKey strips the centroid prefix.
func nameFromKey(key []byte) string {
	return strings.TrimPrefix(string(key), centroidPrefix)
}

// serializeCentroidSet converts a CentroidSet to gob bytes for BadgerDB
// storage. gob keeps float32 values exact.
func serializeCentroidSet(set *CentroidSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(set); err != nil {
		return nil, fmt.Errorf("encoding centroid set: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeCentroidSet converts gob bytes back to a CentroidSet.
func deserializeCentroidSet(data []byte) (*CentroidSet, error) {
	var set CentroidSet
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding centroid set: %w", err)
	}
	return &set, nil
}
