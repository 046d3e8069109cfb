package nearest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadSamples parses one sample per CSV record. A record holds either dim
// coordinates or an identifier followed by dim coordinates. Records without
// an identifier are named by their 1-based line number. Blank lines and
// lines starting with '#' are skipped. dim <= 0 takes the dimensionality
// from the first record, which then must not carry an identifier.
func ReadSamples(r io.Reader, dim int) ([]*Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var samples []*Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if dim <= 0 {
			dim = len(rec)
		}
		var id string
		switch len(rec) {
		case dim:
			id = strconv.Itoa(line)
		case dim + 1:
			id = strings.TrimSpace(rec[0])
			rec = rec[1:]
		default:
			return nil, fmt.Errorf("line %d: %w: %d fields, want %d or %d",
				line, ErrDimensionMismatch, len(rec), dim, dim+1)
		}

		coords := make(Vector, dim)
		for d, field := range rec {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, d+1, err)
			}
			coords[d] = float32(f)
		}
		samples = append(samples, &Sample{ID: id, Coords: coords})
	}
	return samples, nil
}

// WriteAssignments writes id, coordinates and assigned centroid for every
// sample. Unassigned samples get empty centroid columns.
func WriteAssignments(w io.Writer, samples []*Sample) error {
	cw := csv.NewWriter(w)
	for _, s := range samples {
		rec := make([]string, 0, 1+2*len(s.Coords))
		rec = append(rec, s.ID)
		for _, f := range s.Coords {
			rec = append(rec, formatFloat(f))
		}
		for d := range s.Coords {
			if s.Assigned() {
				rec = append(rec, formatFloat(s.Centroid[d]))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// WriteVectors writes one record of coordinates per vector.
func WriteVectors(w io.Writer, vs []Vector) error {
	cw := csv.NewWriter(w)
	for _, v := range vs {
		rec := make([]string, len(v))
		for d, f := range v {
			rec[d] = formatFloat(f)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
