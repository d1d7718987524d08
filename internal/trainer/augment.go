package trainer

import (
	"math"
	"math/rand"

	"github.com/pgbhz/diagnose/internal/dataset"
)

// Augmentation ranges: rotation is a fraction of a full turn, translation a
// fraction of the edge length, zoom a fractional scale delta. These mirror
// the training pipeline the weights artifact format was introduced with.
const (
	maxRotateTurns = 0.042
	maxTranslate   = 0.05
	maxZoom        = 0.10
)

// augmentor applies a seeded composition of small random affine transforms
// and horizontal flips to training images. Validation data never passes
// through it.
type augmentor struct {
	rng *rand.Rand
}

func newAugmentor(seed int64) *augmentor {
	return &augmentor{rng: rand.New(rand.NewSource(seed))}
}

// apply returns a transformed copy; the input image is left untouched.
func (a *augmentor) apply(img dataset.Image) dataset.Image {
	angle := (a.rng.Float64()*2 - 1) * maxRotateTurns * 2 * math.Pi
	tx := (a.rng.Float64()*2 - 1) * maxTranslate * float64(img.Size)
	ty := (a.rng.Float64()*2 - 1) * maxTranslate * float64(img.Size)
	zx := 1 + (a.rng.Float64()*2-1)*maxZoom
	zy := 1 + (a.rng.Float64()*2-1)*maxZoom
	flip := a.rng.Float64() < 0.5

	size := img.Size
	center := float64(size-1) / 2
	sin, cos := math.Sin(angle), math.Cos(angle)

	out := dataset.Image{Size: size, Pix: make([]float32, len(img.Pix))}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Inverse-map each output pixel into the source image.
			dx := float64(x) - center - tx
			dy := float64(y) - center - ty
			if flip {
				dx = -dx
			}
			dx /= zx
			dy /= zy
			sx := center + cos*dx + sin*dy
			sy := center - sin*dx + cos*dy
			for c := 0; c < 3; c++ {
				out.Pix[(y*size+x)*3+c] = bilinear(img, sx, sy, c)
			}
		}
	}
	return out
}

// bilinear samples channel c at fractional coordinates, clamping to edges.
func bilinear(img dataset.Image, x, y float64, c int) float32 {
	size := img.Size
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	at := func(px, py int) float64 {
		if px < 0 {
			px = 0
		} else if px >= size {
			px = size - 1
		}
		if py < 0 {
			py = 0
		} else if py >= size {
			py = size - 1
		}
		return float64(img.Pix[(py*size+px)*3+c])
	}

	top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
	bottom := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
	return float32(top*(1-fy) + bottom*fy)
}
