// Package registry caches the served classifier. At most one model lives in
// memory; it is loaded lazily from the weights artifact on the first predict
// and dropped again on invalidation after a retrain.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/pgbhz/diagnose/internal/classifier"
	"github.com/pgbhz/diagnose/internal/dataset"
)

// ErrWeightsMissing means no trained artifact exists on disk yet.
var ErrWeightsMissing = errors.New("weights file missing; train the transfer model before inference")

// Loader builds a ready-to-serve classifier from a weights artifact.
type Loader func(weightsPath string) (classifier.Classifier, error)

// Registry is the model cache. The mutex guards only the check-load-install
// sequence; inference runs outside it so loaded-model predictions never
// serialize on the cache.
type Registry struct {
	weightsPath string
	load        Loader

	mu      sync.Mutex
	model   classifier.Classifier
	version string
}

func New(weightsPath string, load Loader) *Registry {
	return &Registry{weightsPath: weightsPath, load: load}
}

// acquire returns the cached model, loading and installing it under the
// lock when the cache is empty. Concurrent first callers trigger exactly
// one load.
func (r *Registry) acquire() (classifier.Classifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.model != nil {
		return r.model, nil
	}

	info, err := os.Stat(r.weightsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrWeightsMissing
		}
		return nil, fmt.Errorf("checking weights %s: %w", r.weightsPath, err)
	}

	model, err := r.load(r.weightsPath)
	if err != nil {
		return nil, err
	}
	r.model = model
	r.version = strconv.FormatInt(info.ModTime().UnixNano(), 10)
	return model, nil
}

// Predict classifies one normalized image and returns the positive and
// negative class probabilities. The pair is complementary by construction.
func (r *Registry) Predict(img dataset.Image) (positive, negative float64, err error) {
	model, err := r.acquire()
	if err != nil {
		return 0, 0, err
	}
	prob, err := model.Predict(img)
	if err != nil {
		return 0, 0, err
	}
	return prob, 1 - prob, nil
}

// Invalidate drops the cached model unconditionally. In-flight predictions
// finish on the handle they already hold; the next Predict reloads.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = nil
	r.version = ""
}

// Version returns the cached model's weights version tag, derived from the
// artifact's modification time at load, or nil while the cache is empty.
func (r *Registry) Version() *string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return nil
	}
	v := r.version
	return &v
}
