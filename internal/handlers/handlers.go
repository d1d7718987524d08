// Package handlers exposes the service over HTTP: health, training and
// prediction. It owns request validation and the mapping from the core's
// error taxonomy to status codes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"

	"github.com/pgbhz/diagnose/internal/assets"
	"github.com/pgbhz/diagnose/internal/config"
	"github.com/pgbhz/diagnose/internal/dataset"
	"github.com/pgbhz/diagnose/internal/registry"
	"github.com/pgbhz/diagnose/internal/trainer"
)

// Predictor is the model-cache surface the predict endpoint needs.
type Predictor interface {
	Predict(img dataset.Image) (positive, negative float64, err error)
	Version() *string
	Invalidate()
}

// TrainRunner runs one full training pipeline.
type TrainRunner interface {
	TrainAll(ctx context.Context, req trainer.Request) (*trainer.Result, error)
}

// Handler wires the HTTP surface to the core. trainMu serializes training
// runs: the weights artifact is a single-writer resource.
type Handler struct {
	cfg     config.Config
	models  Predictor
	trainer TrainRunner
	trainMu sync.Mutex
}

func NewHandler(cfg config.Config, models Predictor, runner TrainRunner) *Handler {
	return &Handler{cfg: cfg, models: models, trainer: runner}
}

// Health reports the configured data locations. Always 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"train_data":      h.cfg.TrainDataDir,
		"validation_data": h.cfg.ValidationDataDir,
		"assets_dir":      h.cfg.AssetsDir,
	})
}

type trainRequest struct {
	Epochs       *int     `json:"epochs"`
	Patience     *int     `json:"patience"`
	LearningRate *float64 `json:"learning_rate"`
	BatchSize    *int     `json:"batch_size"`
	Augment      *bool    `json:"augment"`
}

// Train validates the request, runs the pipeline and invalidates the model
// cache so the next prediction picks up the new artifact.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body trainRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := trainer.Request{
		Epochs:       10,
		Patience:     3,
		LearningRate: 1e-4,
		Augment:      true,
	}
	if body.Epochs != nil {
		req.Epochs = *body.Epochs
	}
	if body.Patience != nil {
		req.Patience = *body.Patience
	}
	if body.LearningRate != nil {
		req.LearningRate = *body.LearningRate
	}
	if body.BatchSize != nil {
		req.BatchSize = *body.BatchSize
	}
	if body.Augment != nil {
		req.Augment = *body.Augment
	}

	switch {
	case req.Epochs < 1 || req.Epochs > 100:
		writeDetail(w, http.StatusBadRequest, "epochs must be between 1 and 100")
		return
	case req.Patience < 1 || req.Patience > 20:
		writeDetail(w, http.StatusBadRequest, "patience must be between 1 and 20")
		return
	case req.LearningRate <= 0:
		writeDetail(w, http.StatusBadRequest, "learning_rate must be positive")
		return
	case req.BatchSize != 0 && (req.BatchSize < 4 || req.BatchSize > 512):
		writeDetail(w, http.StatusBadRequest, "batch_size must be between 4 and 512")
		return
	}

	h.trainMu.Lock()
	defer h.trainMu.Unlock()

	result, err := h.trainer.TrainAll(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, dataset.ErrNoImages), errors.Is(err, fs.ErrNotExist):
			writeDetail(w, http.StatusNotFound, err.Error())
		case errors.Is(err, dataset.ErrAllUnreadable):
			writeDetail(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("training error: %v", err)
			writeDetail(w, http.StatusInternalServerError, "training failed")
		}
		return
	}

	h.models.Invalidate()
	writeJSON(w, http.StatusOK, result)
}

type predictRequest struct {
	ImagePath string `json:"image_path"`
}

type predictResponse struct {
	Label          string             `json:"label"`
	Probability    float64            `json:"probability"`
	RawScores      map[string]float64 `json:"raw_scores"`
	WeightsVersion *string            `json:"weights_version"`
}

// Predict resolves the client path inside the asset root, decodes the image
// and classifies it with the cached model.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body predictRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resolved, err := assets.Resolve(body.ImagePath, h.cfg.AssetsDir)
	if err != nil {
		switch {
		case errors.Is(err, assets.ErrEmptyPath), errors.Is(err, assets.ErrOutsideRoot):
			writeDetail(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, fs.ErrNotExist):
			writeDetail(w, http.StatusNotFound, err.Error())
		default:
			log.Printf("path resolution error: %v", err)
			writeDetail(w, http.StatusInternalServerError, "failed to resolve image path")
		}
		return
	}

	img, err := dataset.LoadImage(resolved.Abs, h.cfg.ImageSize)
	if err != nil {
		var decodeErr *dataset.DecodeError
		if errors.As(err, &decodeErr) {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("image load error: %v", err)
		writeDetail(w, http.StatusInternalServerError, "failed to load image")
		return
	}

	positive, negative, err := h.models.Predict(img)
	if err != nil {
		if errors.Is(err, registry.ErrWeightsMissing) {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("prediction error: %v", err)
		writeDetail(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	label := "nc"
	probability := negative
	if positive >= 0.5 {
		label = "c"
		probability = positive
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Label:          label,
		Probability:    probability,
		RawScores:      map[string]float64{"c": positive, "nc": negative},
		WeightsVersion: h.models.Version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
