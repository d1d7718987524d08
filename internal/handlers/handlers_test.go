package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbhz/diagnose/internal/config"
	"github.com/pgbhz/diagnose/internal/dataset"
	"github.com/pgbhz/diagnose/internal/registry"
	"github.com/pgbhz/diagnose/internal/trainer"
)

type stubPredictor struct {
	positive    float64
	err         error
	version     *string
	invalidated int
}

func (s *stubPredictor) Predict(dataset.Image) (float64, float64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.positive, 1 - s.positive, nil
}

func (s *stubPredictor) Version() *string { return s.version }
func (s *stubPredictor) Invalidate()      { s.invalidated++ }

type stubTrainer struct {
	result *trainer.Result
	err    error
	got    trainer.Request
	calls  int
}

func (s *stubTrainer) TrainAll(_ context.Context, req trainer.Request) (*trainer.Result, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

func testSetup(t *testing.T, models Predictor, runner TrainRunner) (*Handler, string) {
	t.Helper()
	assetsDir := t.TempDir()
	cfg := config.Config{
		ImageSize:         16,
		TrainDataDir:      "/data/train",
		ValidationDataDir: "/data/validation",
		AssetsDir:         assetsDir,
	}
	return NewHandler(cfg, models, runner), assetsDir
}

func writeAsset(t *testing.T, dir, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := testSetup(t, &stubPredictor{}, &stubTrainer{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "/data/train", body["train_data"])
	assert.Equal(t, "/data/validation", body["validation_data"])
	assert.NotEmpty(t, body["assets_dir"])
}

func TestTrainAppliesDefaults(t *testing.T) {
	models := &stubPredictor{}
	runner := &stubTrainer{result: &trainer.Result{WeightsPath: "/model/w.gob"}}
	h, _ := testSetup(t, models, runner)

	rec := postJSON(t, h.Train, "/train", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trainer.Request{
		Epochs:       10,
		Patience:     3,
		LearningRate: 1e-4,
		Augment:      true,
	}, runner.got)
	assert.Equal(t, 1, models.invalidated, "cache must be invalidated after training")
}

func TestTrainAcceptsEmptyBody(t *testing.T) {
	runner := &stubTrainer{result: &trainer.Result{}}
	h, _ := testSetup(t, &stubPredictor{}, runner)

	rec := postJSON(t, h.Train, "/train", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestTrainOverrides(t *testing.T) {
	runner := &stubTrainer{result: &trainer.Result{}}
	h, _ := testSetup(t, &stubPredictor{}, runner)

	rec := postJSON(t, h.Train, "/train",
		`{"epochs":5,"patience":2,"learning_rate":0.01,"batch_size":16,"augment":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trainer.Request{
		Epochs:       5,
		Patience:     2,
		LearningRate: 0.01,
		BatchSize:    16,
		Augment:      false,
	}, runner.got)
}

func TestTrainValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"epochs too low", `{"epochs":0}`},
		{"epochs too high", `{"epochs":101}`},
		{"patience too high", `{"patience":21}`},
		{"negative learning rate", `{"learning_rate":-0.1}`},
		{"batch size too small", `{"batch_size":2}`},
		{"batch size too large", `{"batch_size":1024}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &stubTrainer{}
			h, _ := testSetup(t, &stubPredictor{}, runner)
			rec := postJSON(t, h.Train, "/train", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, runner.calls, "invalid requests must not reach the trainer")
		})
	}
}

func TestTrainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing corpus", fmt.Errorf("%w under /data/train", dataset.ErrNoImages), http.StatusNotFound},
		{"unreadable corpus", fmt.Errorf("%w under /data/train", dataset.ErrAllUnreadable), http.StatusBadRequest},
		{"internal", fmt.Errorf("backbone exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			models := &stubPredictor{}
			h, _ := testSetup(t, models, &stubTrainer{err: tc.err})
			rec := postJSON(t, h.Train, "/train", `{}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, 0, models.invalidated, "cache must survive failed training")
		})
	}
}

func TestPredictSuccess(t *testing.T) {
	version := "1234567890"
	models := &stubPredictor{positive: 0.8, version: &version}
	h, assetsDir := testSetup(t, models, &stubTrainer{})
	writeAsset(t, assetsDir, "x.png")

	rec := postJSON(t, h.Predict, "/predict", `{"image_path":"assets/x.png"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c", body.Label)
	assert.Equal(t, 0.8, body.Probability)
	assert.Equal(t, 0.8, body.RawScores["c"])
	assert.InDelta(t, 0.2, body.RawScores["nc"], 1e-12)
	require.NotNil(t, body.WeightsVersion)
	assert.Equal(t, version, *body.WeightsVersion)
}

func TestPredictNegativeLabelProbability(t *testing.T) {
	models := &stubPredictor{positive: 0.3}
	h, assetsDir := testSetup(t, models, &stubTrainer{})
	writeAsset(t, assetsDir, "x.png")

	rec := postJSON(t, h.Predict, "/predict", `{"image_path":"x.png"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nc", body.Label)
	assert.InDelta(t, 0.7, body.Probability, 1e-12, "probability reports the returned label")
	assert.Nil(t, body.WeightsVersion)
}

func TestPredictPathErrors(t *testing.T) {
	h, assetsDir := testSetup(t, &stubPredictor{positive: 0.9}, &stubTrainer{})
	writeAsset(t, assetsDir, "x.png")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"empty path", `{"image_path":""}`, http.StatusBadRequest},
		{"traversal", `{"image_path":"../../etc/passwd"}`, http.StatusBadRequest},
		{"absolute outside", `{"image_path":"/etc/passwd"}`, http.StatusBadRequest},
		{"missing file", `{"image_path":"assets/nope.png"}`, http.StatusNotFound},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.Predict, "/predict", tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestPredictUndecodableAsset(t *testing.T) {
	h, assetsDir := testSetup(t, &stubPredictor{positive: 0.9}, &stubTrainer{})
	require.NoError(t, os.WriteFile(filepath.Join(assetsDir, "junk.png"), []byte("junk"), 0o600))

	rec := postJSON(t, h.Predict, "/predict", `{"image_path":"junk.png"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictWeightsMissing(t *testing.T) {
	h, assetsDir := testSetup(t, &stubPredictor{err: registry.ErrWeightsMissing}, &stubTrainer{})
	writeAsset(t, assetsDir, "x.png")

	rec := postJSON(t, h.Predict, "/predict", `{"image_path":"x.png"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["detail"], "weights")
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := testSetup(t, &stubPredictor{}, &stubTrainer{})

	rec := httptest.NewRecorder()
	h.Train(rec, httptest.NewRequest(http.MethodGet, "/train", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
