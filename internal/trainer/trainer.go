// Package trainer orchestrates a full training run: load both corpora,
// train the baseline and the transfer model with early stopping, evaluate
// them, and persist the transfer model's weights.
package trainer

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/pgbhz/diagnose/internal/classifier"
	"github.com/pgbhz/diagnose/internal/config"
	"github.com/pgbhz/diagnose/internal/dataset"
	"github.com/pgbhz/diagnose/internal/events"
)

// Request carries the boundary-validated training parameters. The HTTP
// layer enforces ranges; the orchestrator assumes they hold.
type Request struct {
	Epochs       int
	Patience     int
	LearningRate float64
	BatchSize    int // 0 selects the configured default
	Augment      bool
}

// Metrics reports one trained model's outcome. ValLoss and ValAccuracy come
// from a final evaluation pass, not from the last training epoch.
type Metrics struct {
	EpochsTrained int     `json:"epochs_trained"`
	ValAccuracy   float64 `json:"val_accuracy"`
	ValLoss       float64 `json:"val_loss"`
}

// Result is the full outcome of a training run.
type Result struct {
	Baseline    Metrics `json:"baseline"`
	Transfer    Metrics `json:"transfer"`
	WeightsPath string  `json:"weights_path"`
}

// BackboneFactory opens the frozen feature backbone for a training run and
// reports its pooled feature width.
type BackboneFactory func() (classifier.FeatureExtractor, int, error)

// Trainer builds and trains both models against the configured corpora.
// Concurrent TrainAll calls race on the weights artifact; callers serialize
// them.
type Trainer struct {
	cfg         config.Config
	newBackbone BackboneFactory
	publisher   *events.Publisher
}

func New(cfg config.Config, newBackbone BackboneFactory, publisher *events.Publisher) *Trainer {
	return &Trainer{cfg: cfg, newBackbone: newBackbone, publisher: publisher}
}

// TrainAll runs the strictly sequential pipeline: corpora, baseline,
// transfer, persist. Corpus failures abort before any training; a failure
// mid-training is fatal to the request with nothing retried.
func (t *Trainer) TrainAll(ctx context.Context, req Request) (*Result, error) {
	trainCorpus, err := dataset.LoadDataset(t.cfg.TrainDataDir, t.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	valCorpus, err := dataset.LoadDataset(t.cfg.ValidationDataDir, t.cfg.ImageSize)
	if err != nil {
		return nil, err
	}

	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = t.cfg.BatchSize
	}

	var aug *augmentor
	if req.Augment {
		aug = newAugmentor(t.cfg.Seed)
	}
	trainStream := newBatchStream(trainCorpus, batchSize, true, aug, t.cfg.Seed)
	valStream := newBatchStream(valCorpus, batchSize, false, nil, t.cfg.Seed)

	t.publisher.Publish(ctx, "training.started", map[string]any{
		"epochs":  req.Epochs,
		"augment": req.Augment,
		"samples": len(trainCorpus.Images),
	})

	log.Printf("training baseline model (%d samples, batch %d)", len(trainCorpus.Images), batchSize)
	baseline := classifier.NewBaseline(t.cfg.ImageSize, t.cfg.Seed)
	baselineMetrics, err := fit(ctx, baseline, trainStream, valStream, req.Epochs, req.Patience)
	if err != nil {
		return nil, t.failed(ctx, fmt.Errorf("training baseline model: %w", err))
	}

	backbone, featureDim, err := t.newBackbone()
	if err != nil {
		return nil, t.failed(ctx, fmt.Errorf("opening feature backbone: %w", err))
	}
	if closer, ok := backbone.(interface{ Close() }); ok {
		defer closer.Close()
	}

	log.Printf("training transfer model (lr %g)", req.LearningRate)
	transfer := classifier.NewTransfer(backbone, featureDim, req.LearningRate, t.cfg.Seed)
	transferMetrics, err := fit(ctx, transfer, trainStream, valStream, req.Epochs, req.Patience)
	if err != nil {
		return nil, t.failed(ctx, fmt.Errorf("training transfer model: %w", err))
	}

	if err := transfer.SaveWeights(t.cfg.WeightsPath); err != nil {
		return nil, t.failed(ctx, err)
	}

	t.publisher.Publish(ctx, "training.completed", map[string]any{
		"baseline_val_accuracy": baselineMetrics.ValAccuracy,
		"transfer_val_accuracy": transferMetrics.ValAccuracy,
		"weights_path":          t.cfg.WeightsPath,
	})

	return &Result{
		Baseline:    baselineMetrics,
		Transfer:    transferMetrics,
		WeightsPath: t.cfg.WeightsPath,
	}, nil
}

func (t *Trainer) failed(ctx context.Context, err error) error {
	t.publisher.Publish(ctx, "training.failed", map[string]any{"error": err.Error()})
	return err
}

// fit trains one model with early stopping on validation loss, rolls back
// to the best-observed checkpoint, and evaluates once more for the
// reported numbers.
func fit(ctx context.Context, m classifier.Trainable, train, val *batchStream, epochs, patience int) (Metrics, error) {
	tracker := newBestTracker(patience)
	epochsRun := 0
	for epoch := 1; epoch <= epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		err := train.Each(func(imgs []dataset.Image, labels []int) error {
			_, err := m.TrainBatch(imgs, labels)
			return err
		})
		if err != nil {
			return Metrics{}, err
		}
		epochsRun = epoch

		valLoss, valAcc, err := evaluate(m, val)
		if err != nil {
			return Metrics{}, err
		}
		log.Printf("epoch %d/%d: val_loss=%.4f val_accuracy=%.4f", epoch, epochs, valLoss, valAcc)
		if tracker.observe(valLoss, m.Snapshot) {
			log.Printf("early stopping after epoch %d (best val_loss=%.4f)", epoch, tracker.bestLoss)
			break
		}
	}
	tracker.restore(m.Restore)

	loss, acc, err := evaluate(m, val)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{EpochsTrained: epochsRun, ValAccuracy: acc, ValLoss: loss}, nil
}

// evaluate computes mean binary cross-entropy and accuracy over one pass of
// the stream.
func evaluate(m classifier.Classifier, stream *batchStream) (loss, accuracy float64, err error) {
	total := 0.0
	correct := 0
	count := 0
	err = stream.Each(func(imgs []dataset.Image, labels []int) error {
		for i, img := range imgs {
			prob, err := m.Predict(img)
			if err != nil {
				return err
			}
			clamped := math.Min(math.Max(prob, 1e-7), 1-1e-7)
			y := float64(labels[i])
			total += -(y*math.Log(clamped) + (1-y)*math.Log(1-clamped))
			if (prob >= 0.5) == (labels[i] == 1) {
				correct++
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return total / float64(count), float64(correct) / float64(count), nil
}
