package occurrence

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DropStats reports how many rows the loader excluded and why. These are
// informational: dropped rows never abort a run.
type DropStats struct {
	BadLabel int `json:"badLabel"`
	BadValue int `json:"badValue"`
}

// Total returns the total number of excluded rows.
func (s DropStats) Total() int { return s.BadLabel + s.BadValue }

var (
	labelCandidates = []string{"label", "presence", "occurrence", "pa"}
	lonCandidates   = []string{"longitude", "lon", "long", "x"}
	latCandidates   = []string{"latitude", "lat", "y"}
	elevCandidates  = []string{"elevation", "elev", "altitude", "alt"}

	// Identifier-like columns are never treated as covariates.
	identifierColumns = map[string]bool{
		"id": true, "uid": true, "fid": true, "objectid": true,
		"record": true, "species": true, "name": true, "scientificname": true,
		"locality": true, "source": true, "date": true, "notes": true,
	}
)

// LoadTable reads an occurrence CSV, normalizes its labels and drops rows
// that fail normalization or carry unusable coordinates or covariate values.
// labelColumn names the label column; when empty, a set of conventional
// header names is tried. Every non-identifier, non-coordinate column becomes
// a covariate, in table order.
func LoadTable(path, labelColumn string) (Dataset, DropStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, DropStats{}, fmt.Errorf("open occurrence table %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return Dataset{}, DropStats{}, fmt.Errorf("read occurrence table %s: %w", path, err)
	}
	if len(rows) < 2 {
		return Dataset{}, DropStats{}, fmt.Errorf("occurrence table %s: no data rows", path)
	}

	header := rows[0]
	labelIdx := findColumn(header, labelColumn, labelCandidates)
	if labelIdx < 0 {
		return Dataset{}, DropStats{}, fmt.Errorf("occurrence table %s: label column not found", path)
	}
	lonIdx := findColumn(header, "", lonCandidates)
	latIdx := findColumn(header, "", latCandidates)
	if lonIdx < 0 || latIdx < 0 {
		return Dataset{}, DropStats{}, fmt.Errorf("occurrence table %s: longitude/latitude columns required", path)
	}
	elevIdx := findColumn(header, "", elevCandidates)

	reserved := map[int]bool{labelIdx: true, lonIdx: true, latIdx: true}
	if elevIdx >= 0 {
		reserved[elevIdx] = true
	}
	var covIdx []int
	var covariates []string
	for i, name := range header {
		lower := strings.ToLower(strings.TrimSpace(name))
		if reserved[i] || identifierColumns[lower] || strings.HasSuffix(lower, "_id") {
			continue
		}
		covIdx = append(covIdx, i)
		covariates = append(covariates, strings.TrimSpace(name))
	}

	ds := Dataset{Covariates: covariates}
	var stats DropStats
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			stats.BadValue++
			continue
		}
		label, ok := NormalizeLabel(row[labelIdx])
		if !ok {
			stats.BadLabel++
			continue
		}
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[lonIdx]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[latIdx]), 64)
		if errLon != nil || errLat != nil {
			stats.BadValue++
			continue
		}
		rec := Record{Lon: lon, Lat: lat, Label: label, Covariates: make(map[string]float64, len(covIdx))}
		if elevIdx >= 0 {
			if elev, err := strconv.ParseFloat(strings.TrimSpace(row[elevIdx]), 64); err == nil {
				rec.Elevation = elev
				rec.HasElev = true
			}
		}
		valid := true
		for j, ci := range covIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[ci]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				valid = false
				break
			}
			rec.Covariates[covariates[j]] = v
		}
		if !valid {
			stats.BadValue++
			continue
		}
		ds.Records = append(ds.Records, rec)
	}

	log.Debug().
		Str("table", path).
		Int("records", len(ds.Records)).
		Int("covariates", len(covariates)).
		Int("dropped_label", stats.BadLabel).
		Int("dropped_value", stats.BadValue).
		Msg("Loaded occurrence table")

	return ds, stats, nil
}

// findColumn locates a column by the preferred name first, then by the
// candidate list, matching case-insensitively.
func findColumn(header []string, preferred string, candidates []string) int {
	names := candidates
	if preferred != "" {
		names = append([]string{preferred}, candidates...)
	}
	for _, want := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return -1
}
