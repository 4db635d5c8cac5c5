// Package storage provides persistent storage for pipeline artifacts. It
// uses BoltDB as the underlying engine to keep the fitted model and the run
// manifests, so a projection run can be audited and re-scored without
// retraining.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"nichecast/internal/pipeline"
	"nichecast/internal/train"
)

const (
	modelsBucket    = "models"    // Fitted model artifacts keyed by run label
	manifestsBucket = "manifests" // Run manifests keyed by label_startedAt
)

// Store provides persistent storage for models and run manifests.
type Store struct {
	db *bbolt.DB
}

// New opens the database under dataPath and creates the buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "nichecast.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucket)); err != nil {
			return fmt.Errorf("create models bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(manifestsBucket)); err != nil {
			return fmt.Errorf("create manifests bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveModel stores the fitted model under the run label, replacing any
// previous artifact for that label.
func (s *Store) SaveModel(label string, m *train.Model) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal model: %w", err)
		}
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(label), data)
	})
}

// LoadModel retrieves the model stored under the run label.
func (s *Store) LoadModel(label string) (*train.Model, error) {
	var m train.Model
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get([]byte(label))
		if data == nil {
			return fmt.Errorf("no model stored for label %q", label)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveManifest appends a run manifest. The key combines the run label and
// start time so repeated runs under one label are all retained.
func (s *Store) SaveManifest(man *pipeline.Manifest) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(man)
		if err != nil {
			return fmt.Errorf("marshal manifest: %w", err)
		}
		key := fmt.Sprintf("%s_%d", man.RunLabel, man.StartedAt.UnixNano())
		return tx.Bucket([]byte(manifestsBucket)).Put([]byte(key), data)
	})
}

// Manifests returns every stored manifest for a run label in start order.
func (s *Store) Manifests(label string) ([]pipeline.Manifest, error) {
	var out []pipeline.Manifest
	prefix := []byte(label + "_")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(manifestsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var m pipeline.Manifest
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("unmarshal manifest %s: %w", k, err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
