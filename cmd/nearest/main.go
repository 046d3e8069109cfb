// Command nearest assigns points to their nearest centroid on a compute device.
//
// Centroid sets are kept in a BadgerDB store and referenced by name. Points
// are read from CSV, one per record, optionally prefixed by an identifier.
//
// Usage:
//
//	nearest [command] [flags]
//
// Commands:
//
//	assign             assign points from a CSV file to their nearest centroid
//	centroids put      store a centroid set read from CSV
//	centroids get      print a stored centroid set as CSV
//	centroids list     list stored centroid sets
//	centroids delete   remove a stored centroid set
//	device             show the compute device that would be used
//
// Global flags:
//
//	--config string    YAML configuration file
//	--store string     centroid store directory
//	--backend string   compute backend: auto, host or opencl
//	--batch int        points per dispatch (0 uses the scalar budget)
//
// Example:
//
//	# Store two centroids and assign points against them
//	nearest centroids put clusters centroids.csv
//	nearest assign --set clusters points.csv > assigned.csv
//
//	# Use centroids from a file without storing them
//	nearest assign --centroids centroids.csv points.csv
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
