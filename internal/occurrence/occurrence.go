// Package occurrence loads species occurrence tables and normalizes their
// presence/absence labels into the canonical binary form the trainer expects.
package occurrence

import (
	"math"
)

// Record is one occurrence observation: where it was sampled, whether the
// species was present, and the environmental covariates at that location.
// Coordinates are kept for traceability but never enter model fitting.
type Record struct {
	Lon        float64
	Lat        float64
	Elevation  float64
	HasElev    bool
	Label      int
	Covariates map[string]float64
}

// Dataset is a set of normalized records plus the covariate column order of
// the source table. The order is what makes feature selection and training
// deterministic.
type Dataset struct {
	Records    []Record
	Covariates []string
}

// Len returns the record count.
func (d Dataset) Len() int { return len(d.Records) }

// Labels returns the label column.
func (d Dataset) Labels() []int {
	out := make([]int, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Label
	}
	return out
}

// ClassCounts returns the number of absence and presence records.
func (d Dataset) ClassCounts() (absences, presences int) {
	for _, r := range d.Records {
		if r.Label == 1 {
			presences++
		} else {
			absences++
		}
	}
	return absences, presences
}

// Matrix assembles the feature matrix for the named covariates, one row per
// record, columns in the given order. Records missing a value for any of the
// names get NaN in that column.
func (d Dataset) Matrix(names []string) [][]float64 {
	rows := make([][]float64, len(d.Records))
	for i, r := range d.Records {
		row := make([]float64, len(names))
		for j, n := range names {
			if v, ok := r.Covariates[n]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		rows[i] = row
	}
	return rows
}

// Restrict returns a dataset holding only the named covariates, in the given
// order. Records are shared structurally but covariate maps are rebuilt so the
// result is independent of later mutation.
func (d Dataset) Restrict(names []string) Dataset {
	out := Dataset{Covariates: append([]string(nil), names...)}
	out.Records = make([]Record, len(d.Records))
	for i, r := range d.Records {
		nr := r
		nr.Covariates = make(map[string]float64, len(names))
		for _, n := range names {
			if v, ok := r.Covariates[n]; ok {
				nr.Covariates[n] = v
			}
		}
		out.Records[i] = nr
	}
	return out
}

// Subset returns the records at the given indices as a new dataset.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{Covariates: d.Covariates}
	out.Records = make([]Record, len(idx))
	for i, j := range idx {
		out.Records[i] = d.Records[j]
	}
	return out
}
