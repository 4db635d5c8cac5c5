package storage

import (
	"testing"
	"time"

	"nichecast/internal/classifier"
	"nichecast/internal/occurrence"
	"nichecast/internal/pipeline"
	"nichecast/internal/train"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fittedModel(t *testing.T) *train.Model {
	t.Helper()
	ds := occurrence.Dataset{Covariates: []string{"bio1", "bio2"}}
	for i := 0; i < 30; i++ {
		ds.Records = append(ds.Records, occurrence.Record{
			Label: i % 2,
			Covariates: map[string]float64{
				"bio1": float64(i%2)*5 + float64(i%3),
				"bio2": float64(i % 4),
			},
		})
	}
	forest := classifier.NewForest(classifier.ForestConfig{Trees: 5, Seed: 1})
	if err := forest.Fit(ds.Matrix(ds.Covariates), ds.Labels()); err != nil {
		t.Fatal(err)
	}
	return &train.Model{
		Covariates: ds.Covariates,
		Forest:     forest,
		Fitted:     train.FitInfo{Seed: 1337, Folds: 5, TrainedAt: time.Now().UTC()},
	}
}

func TestModelRoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	model := fittedModel(t)
	if err := s.SaveModel("run-a", model); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadModel("run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Covariates) != 2 || got.Covariates[0] != "bio1" {
		t.Errorf("covariates = %v", got.Covariates)
	}
	if got.Fitted.Seed != 1337 {
		t.Errorf("seed = %d, want 1337", got.Fitted.Seed)
	}

	// The restored forest must predict identically.
	row := []float64{4, 2}
	want, err := model.PredictProba(row)
	if err != nil {
		t.Fatal(err)
	}
	have, err := got.PredictProba(row)
	if err != nil {
		t.Fatal(err)
	}
	if want != have {
		t.Errorf("restored model predicts %v, original %v", have, want)
	}
}

func TestLoadModelMissing(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if _, err := s.LoadModel("absent"); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		man := &pipeline.Manifest{
			RunLabel:  "run-b",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Units: []pipeline.UnitResult{
				{Kind: pipeline.KindVariable, Name: "historical/bio1", Status: pipeline.StatusOK},
				{Kind: pipeline.KindVariable, Name: "historical/bio9", Status: pipeline.StatusSkipped, Reason: "too few valid points: 4 < 10"},
			},
		}
		if err := s.SaveManifest(man); err != nil {
			t.Fatal(err)
		}
	}
	// A manifest under another label must not leak into the scan.
	other := &pipeline.Manifest{RunLabel: "run", StartedAt: base}
	if err := s.SaveManifest(other); err != nil {
		t.Fatal(err)
	}

	got, err := s.Manifests("run-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d manifests, want 3", len(got))
	}
	if !got[0].StartedAt.Equal(base) {
		t.Errorf("first manifest start = %v", got[0].StartedAt)
	}
	if got[0].Units[1].Reason == "" {
		t.Error("skip reason lost across round trip")
	}
}
