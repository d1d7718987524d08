// Package classifier defines the trainable-classifier boundary the registry
// and trainer work against, plus the two concrete models: a from-scratch
// convolutional baseline and a frozen-backbone transfer model.
package classifier

import "github.com/pgbhz/diagnose/internal/dataset"

// Classifier predicts the positive-class probability for one image.
type Classifier interface {
	Predict(img dataset.Image) (float64, error)
}

// Trainable is a classifier the orchestrator can fit: it learns from
// batches and can snapshot/restore its parameters for early-stopping
// rollback.
type Trainable interface {
	Classifier
	TrainBatch(imgs []dataset.Image, labels []int) (float64, error)
	Snapshot() [][]float64
	Restore(snap [][]float64)
}

// chw converts a normalized HWC image into the channel-major float64 layout
// the neural layers operate on.
func chw(img dataset.Image) []float64 {
	size := img.Size
	out := make([]float64, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := (y*size + x) * 3
			out[0*plane+y*size+x] = float64(img.Pix[i])
			out[1*plane+y*size+x] = float64(img.Pix[i+1])
			out[2*plane+y*size+x] = float64(img.Pix[i+2])
		}
	}
	return out
}
