// Package config collects the environment-sourced settings for the model
// service. Every knob has a default so the service starts with no
// configuration at all; paths are made absolute once, at load time.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the resolved settings shared across the service.
type Config struct {
	Port string

	// ImageSize is the square edge length every corpus and prediction
	// image is resized to before it reaches a model.
	ImageSize int
	BatchSize int
	Seed      int64

	TrainDataDir      string
	ValidationDataDir string
	AssetsDir         string
	ModelDir          string
	WeightsPath       string

	BackboneModelPath    string
	BackboneMetadataPath string

	// RedisAddr enables the training-event queue when non-empty.
	RedisAddr  string
	EventQueue string
}

// Load reads the configuration from the environment, filling defaults for
// anything unset.
func Load() Config {
	modelDir := getenv("MODEL_DIR", "model")

	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ImageSize:         getenvInt("IMAGE_SIZE", 128),
		BatchSize:         getenvInt("BATCH_SIZE", 32),
		Seed:              int64(getenvInt("MODEL_SEED", 42)),
		TrainDataDir:      getenv("TRAIN_DATA_DIR", filepath.Join("data", "train")),
		ValidationDataDir: getenv("VALIDATION_DATA_DIR", filepath.Join("data", "validation")),
		AssetsDir:         getenv("ASSETS_DIR", "assets"),
		ModelDir:          modelDir,
		WeightsPath: getenv("WEIGHTS_PATH",
			filepath.Join(modelDir, "weights", "mobilenet_transfer.weights.gob")),
		BackboneModelPath: getenv("BACKBONE_MODEL_PATH",
			filepath.Join(modelDir, "mobilenet_v2_features.onnx")),
		BackboneMetadataPath: getenv("BACKBONE_METADATA_PATH",
			filepath.Join(modelDir, "backbone_metadata.json")),
		RedisAddr:  getenv("REDIS_ADDR", ""),
		EventQueue: getenv("MODEL_EVENT_QUEUE", "diagnosis:model_events"),
	}

	cfg.TrainDataDir = absPath(cfg.TrainDataDir)
	cfg.ValidationDataDir = absPath(cfg.ValidationDataDir)
	cfg.AssetsDir = absPath(cfg.AssetsDir)
	cfg.ModelDir = absPath(cfg.ModelDir)
	cfg.WeightsPath = absPath(cfg.WeightsPath)
	cfg.BackboneModelPath = absPath(cfg.BackboneModelPath)
	cfg.BackboneMetadataPath = absPath(cfg.BackboneMetadataPath)
	return cfg
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
