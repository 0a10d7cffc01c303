// Package model holds the trained linear predictor and the persisted
// artifact that pairs it with the scaler it was trained behind.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"traffic-predictor/internal/features"
	"traffic-predictor/internal/scaler"
)

// Artifact is the single persisted unit: a model and the scaler it was fit
// behind. The two halves are never loaded or used independently.
type Artifact struct {
	Model  Linear        `json:"model"`
	Scaler scaler.Params `json:"scaler"`
}

// Validate checks both halves and that they share one feature schema.
func (a *Artifact) Validate() error {
	if err := a.Model.Validate(); err != nil {
		return err
	}
	if err := a.Scaler.Validate(); err != nil {
		return err
	}
	return nil
}

// Predict scales raw features and applies the model.
func (a *Artifact) Predict(v features.Vector) (float64, error) {
	scaled, err := a.Scaler.Transform(v)
	if err != nil {
		return 0, err
	}
	return a.Model.Predict(scaled)
}

// Encode writes the artifact as indented JSON.
func Encode(w io.Writer, a *Artifact) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Decode reads an artifact, rejecting documents that lack either half or
// carry fields other than "model" and "scaler".
func Decode(r io.Reader) (*Artifact, error) {
	var doc struct {
		Model  *Linear        `json:"model"`
		Scaler *scaler.Params `json:"scaler"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	switch {
	case doc.Model == nil && doc.Scaler == nil:
		return nil, errors.New("artifact has neither model nor scaler")
	case doc.Model == nil:
		return nil, errors.New("artifact is missing the model")
	case doc.Scaler == nil:
		return nil, errors.New("artifact is missing the scaler")
	}
	a := &Artifact{Model: *doc.Model, Scaler: *doc.Scaler}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Load reads and validates the artifact at path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Save writes the artifact to path atomically: readers see either the old
// file or the complete new one.
func Save(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}
