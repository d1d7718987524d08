package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/pgbhz/diagnose/internal/classifier"
	"github.com/pgbhz/diagnose/internal/config"
	"github.com/pgbhz/diagnose/internal/events"
	"github.com/pgbhz/diagnose/internal/handlers"
	"github.com/pgbhz/diagnose/internal/registry"
	"github.com/pgbhz/diagnose/internal/trainer"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	if err := os.MkdirAll(filepath.Dir(cfg.WeightsPath), 0o755); err != nil {
		log.Fatalf("Failed to create weights directory: %v", err)
	}

	publisher := events.NewPublisher(cfg.RedisAddr, cfg.EventQueue)
	defer publisher.Close()

	newBackbone := func() (classifier.FeatureExtractor, int, error) {
		backbone, err := classifier.NewONNXBackbone(cfg.BackboneModelPath, cfg.BackboneMetadataPath)
		if err != nil {
			return nil, 0, err
		}
		return backbone, backbone.FeatureDim(), nil
	}

	models := registry.New(cfg.WeightsPath, func(weightsPath string) (classifier.Classifier, error) {
		backbone, err := classifier.NewONNXBackbone(cfg.BackboneModelPath, cfg.BackboneMetadataPath)
		if err != nil {
			return nil, err
		}
		model := classifier.NewTransfer(backbone, backbone.FeatureDim(), 1e-4, cfg.Seed)
		if err := model.LoadWeights(weightsPath); err != nil {
			backbone.Close()
			return nil, err
		}
		return model, nil
	})

	runner := trainer.New(cfg, newBackbone, publisher)
	handler := handlers.NewHandler(cfg, models, runner)

	http.HandleFunc("/healthz", enableCORS(handler.Health))
	http.HandleFunc("/train", enableCORS(handler.Train))
	http.HandleFunc("/predict", enableCORS(handler.Predict))

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Train data: %s", cfg.TrainDataDir)
	log.Printf("Validation data: %s", cfg.ValidationDataDir)
	log.Printf("Assets dir: %s", cfg.AssetsDir)
	log.Printf("Weights path: %s", cfg.WeightsPath)
	log.Println("Endpoints:")
	log.Println("  GET  /healthz - Health check")
	log.Println("  POST /train   - Train baseline and transfer models")
	log.Println("  POST /predict - Classify an asset image")

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
