package classifier

import (
	"fmt"
	"math/rand"

	"github.com/pgbhz/diagnose/internal/dataset"
	"github.com/pgbhz/diagnose/internal/neural"
)

// FeatureExtractor is a frozen image-feature backbone. Features receives a
// flat HWC tensor already rescaled into [-1,1] and returns the channel-major
// feature map together with its channel count; the backbone itself is never
// trained.
type FeatureExtractor interface {
	Features(pix []float32) (features []float64, channels int, err error)
}

// Transfer is the served model: a frozen backbone behind an input-rescaling
// stage, then global average pooling, dropout and a sigmoid unit. Only the
// head after the backbone is trainable, and only its weights are persisted.
type Transfer struct {
	backbone   FeatureExtractor
	featureDim int
	head       *neural.Network
	opt        *neural.Adam
}

// NewTransfer builds a transfer model whose head takes featureDim pooled
// backbone channels. lr is the head's Adam learning rate.
func NewTransfer(backbone FeatureExtractor, featureDim int, lr float64, seed int64) *Transfer {
	rng := rand.New(rand.NewSource(seed))
	head := &neural.Network{Layers: []neural.Layer{
		neural.NewDropout(0.3, rng),
		neural.NewDense(featureDim, 1, rng),
	}}
	return &Transfer{
		backbone:   backbone,
		featureDim: featureDim,
		head:       head,
		opt:        neural.NewAdam(lr),
	}
}

// pooled runs the backbone on the [-1,1]-rescaled image and averages each
// feature channel over its spatial extent.
func (t *Transfer) pooled(img dataset.Image) ([]float64, error) {
	rescaled := make([]float32, len(img.Pix))
	for i, v := range img.Pix {
		rescaled[i] = v*2 - 1
	}

	feats, channels, err := t.backbone.Features(rescaled)
	if err != nil {
		return nil, err
	}
	if channels != t.featureDim {
		return nil, fmt.Errorf("backbone produced %d channels, head expects %d", channels, t.featureDim)
	}
	spatial := len(feats) / channels
	pooled := make([]float64, channels)
	for c := 0; c < channels; c++ {
		sum := 0.0
		for s := 0; s < spatial; s++ {
			sum += feats[c*spatial+s]
		}
		pooled[c] = sum / float64(spatial)
	}
	return pooled, nil
}

func (t *Transfer) Predict(img dataset.Image) (float64, error) {
	features, err := t.pooled(img)
	if err != nil {
		return 0, err
	}
	return t.head.Predict(features), nil
}

func (t *Transfer) TrainBatch(imgs []dataset.Image, labels []int) (float64, error) {
	xs := make([][]float64, len(imgs))
	ys := make([]float64, len(imgs))
	for i, img := range imgs {
		features, err := t.pooled(img)
		if err != nil {
			return 0, err
		}
		xs[i] = features
		ys[i] = float64(labels[i])
	}
	return t.head.TrainBatch(xs, ys, t.opt), nil
}

func (t *Transfer) Snapshot() [][]float64 { return t.head.Snapshot() }
func (t *Transfer) Restore(snap [][]float64) { t.head.Restore(snap) }
