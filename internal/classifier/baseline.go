package classifier

import (
	"math/rand"

	"github.com/pgbhz/diagnose/internal/dataset"
	"github.com/pgbhz/diagnose/internal/neural"
)

// Baseline is the from-scratch reference model: two conv+pool stages, a
// dense hidden layer with dropout, and a sigmoid output, trained end to end
// from random initialization. It exists for comparison and is never
// persisted.
type Baseline struct {
	net *neural.Network
	opt *neural.Adam
}

// NewBaseline builds the baseline network for a given square image size,
// seeding all random initialization for reproducibility.
func NewBaseline(imageSize int, seed int64) *Baseline {
	rng := rand.New(rand.NewSource(seed))

	conv1 := neural.NewConv2D(3, imageSize, imageSize, 32, 3, rng)
	c, h, w := conv1.OutShape()
	pool1 := neural.NewMaxPool2(c, h, w)
	c, h, w = pool1.OutShape()
	conv2 := neural.NewConv2D(c, h, w, 64, 3, rng)
	c, h, w = conv2.OutShape()
	pool2 := neural.NewMaxPool2(c, h, w)
	c, h, w = pool2.OutShape()

	net := &neural.Network{Layers: []neural.Layer{
		conv1,
		neural.NewReLU(),
		pool1,
		conv2,
		neural.NewReLU(),
		pool2,
		neural.NewDense(c*h*w, 128, rng),
		neural.NewReLU(),
		neural.NewDropout(0.5, rng),
		neural.NewDense(128, 1, rng),
	}}

	return &Baseline{net: net, opt: neural.NewAdam(1e-3)}
}

func (b *Baseline) Predict(img dataset.Image) (float64, error) {
	return b.net.Predict(chw(img)), nil
}

func (b *Baseline) TrainBatch(imgs []dataset.Image, labels []int) (float64, error) {
	xs := make([][]float64, len(imgs))
	ys := make([]float64, len(imgs))
	for i, img := range imgs {
		xs[i] = chw(img)
		ys[i] = float64(labels[i])
	}
	return b.net.TrainBatch(xs, ys, b.opt), nil
}

func (b *Baseline) Snapshot() [][]float64 { return b.net.Snapshot() }
func (b *Baseline) Restore(snap [][]float64) { b.net.Restore(snap) }
