// Package rasterize converts point-sampled climate tables into variable
// rasters aligned to the run's template. Variables rasterize independently on
// a bounded worker pool; a variable that cannot be rasterized is skipped with
// a reason, never aborting its siblings.
package rasterize

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// PointTable is one scenario's point samples in column-major form: one value
// slice per climate variable, parallel to the coordinate slices. Unparseable
// values come through as NaN and are filtered per variable during
// rasterization.
type PointTable struct {
	Lons      []float64
	Lats      []float64
	Variables []string
	Values    [][]float64
}

// Points returns the number of sampled points.
func (t *PointTable) Points() int { return len(t.Lons) }

// LoadPointTable reads a climate point CSV. Longitude and Latitude columns
// are required and their absence rejects the table before any rasterization.
// Variable columns start at varOffset; columns before it that are not the
// coordinates are ignored (identifier columns in the source extracts).
func LoadPointTable(path string, varOffset int) (*PointTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open point table %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read point table %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("point table %s: no data rows", path)
	}

	header := rows[0]
	lonIdx, latIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "longitude", "lon":
			if lonIdx < 0 {
				lonIdx = i
			}
		case "latitude", "lat":
			if latIdx < 0 {
				latIdx = i
			}
		}
	}
	if lonIdx < 0 || latIdx < 0 {
		return nil, fmt.Errorf("point table %s: Longitude/Latitude columns required", path)
	}

	if varOffset < 0 || varOffset >= len(header) {
		return nil, fmt.Errorf("point table %s: variable column offset %d out of range", path, varOffset)
	}
	var varIdx []int
	tbl := &PointTable{}
	for i := varOffset; i < len(header); i++ {
		if i == lonIdx || i == latIdx {
			continue
		}
		varIdx = append(varIdx, i)
		tbl.Variables = append(tbl.Variables, strings.TrimSpace(header[i]))
	}
	if len(tbl.Variables) == 0 {
		return nil, fmt.Errorf("point table %s: no variable columns after offset %d", path, varOffset)
	}

	tbl.Values = make([][]float64, len(tbl.Variables))
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			continue
		}
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[lonIdx]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[latIdx]), 64)
		if errLon != nil || errLat != nil {
			continue
		}
		tbl.Lons = append(tbl.Lons, lon)
		tbl.Lats = append(tbl.Lats, lat)
		for j, ci := range varIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[ci]), 64)
			if err != nil {
				v = math.NaN()
			}
			tbl.Values[j] = append(tbl.Values[j], v)
		}
	}
	if tbl.Points() == 0 {
		return nil, fmt.Errorf("point table %s: no usable points", path)
	}
	return tbl, nil
}
