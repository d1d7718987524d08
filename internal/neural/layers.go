// Package neural is a small CPU training engine: enough layers to express
// the service's two classifier heads and train them with Adam on binary
// cross-entropy. Image tensors flow through layers as flat channel-major
// slices; every layer knows its own shape from construction.
package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one learnable tensor with its accumulated gradient.
type Param struct {
	W []float64
	G []float64
}

// Layer transforms a flat tensor forward and routes gradients backward.
// Backward adds into parameter gradients; callers zero them per batch.
type Layer interface {
	Forward(x []float64, train bool) []float64
	Backward(grad []float64) []float64
	Params() []*Param
}

func newParam(n int) *Param {
	return &Param{W: make([]float64, n), G: make([]float64, n)}
}

// glorot fills w with Glorot-uniform values for the given fan sizes.
func glorot(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Conv2D is a stride-1, valid-padding convolution over a C×H×W tensor.
type Conv2D struct {
	inC, inH, inW int
	outC, k       int
	outH, outW    int

	w, b *Param

	lastCols *mat.Dense
}

func NewConv2D(inC, inH, inW, outC, k int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		inC: inC, inH: inH, inW: inW,
		outC: outC, k: k,
		outH: inH - k + 1, outW: inW - k + 1,
		w: newParam(outC * inC * k * k),
		b: newParam(outC),
	}
	glorot(c.w.W, inC*k*k, outC, rng)
	return c
}

// OutShape reports the layer's output dimensions, for chaining layers.
func (c *Conv2D) OutShape() (ch, h, w int) { return c.outC, c.outH, c.outW }

func (c *Conv2D) Forward(x []float64, train bool) []float64 {
	spatial := c.outH * c.outW
	cols := mat.NewDense(c.inC*c.k*c.k, spatial, nil)
	for ch := 0; ch < c.inC; ch++ {
		for ky := 0; ky < c.k; ky++ {
			for kx := 0; kx < c.k; kx++ {
				row := (ch*c.k+ky)*c.k + kx
				for oy := 0; oy < c.outH; oy++ {
					for ox := 0; ox < c.outW; ox++ {
						cols.Set(row, oy*c.outW+ox, x[ch*c.inH*c.inW+(oy+ky)*c.inW+(ox+kx)])
					}
				}
			}
		}
	}
	c.lastCols = cols

	weights := mat.NewDense(c.outC, c.inC*c.k*c.k, c.w.W)
	out := mat.NewDense(c.outC, spatial, nil)
	out.Mul(weights, cols)

	flat := make([]float64, c.outC*spatial)
	for oc := 0; oc < c.outC; oc++ {
		bias := c.b.W[oc]
		row := out.RawRowView(oc)
		for i, v := range row {
			flat[oc*spatial+i] = v + bias
		}
	}
	return flat
}

func (c *Conv2D) Backward(grad []float64) []float64 {
	spatial := c.outH * c.outW
	g := mat.NewDense(c.outC, spatial, grad)

	dw := mat.NewDense(c.outC, c.inC*c.k*c.k, nil)
	dw.Mul(g, c.lastCols.T())
	raw := dw.RawMatrix().Data
	for i, v := range raw {
		c.w.G[i] += v
	}
	for oc := 0; oc < c.outC; oc++ {
		sum := 0.0
		for _, v := range g.RawRowView(oc) {
			sum += v
		}
		c.b.G[oc] += sum
	}

	weights := mat.NewDense(c.outC, c.inC*c.k*c.k, c.w.W)
	dcols := mat.NewDense(c.inC*c.k*c.k, spatial, nil)
	dcols.Mul(weights.T(), g)

	dx := make([]float64, c.inC*c.inH*c.inW)
	for ch := 0; ch < c.inC; ch++ {
		for ky := 0; ky < c.k; ky++ {
			for kx := 0; kx < c.k; kx++ {
				row := (ch*c.k+ky)*c.k + kx
				for oy := 0; oy < c.outH; oy++ {
					for ox := 0; ox < c.outW; ox++ {
						dx[ch*c.inH*c.inW+(oy+ky)*c.inW+(ox+kx)] += dcols.At(row, oy*c.outW+ox)
					}
				}
			}
		}
	}
	return dx
}

func (c *Conv2D) Params() []*Param { return []*Param{c.w, c.b} }

// ReLU zeroes negative activations.
type ReLU struct {
	mask []bool
}

func NewReLU() *ReLU { return &ReLU{} }

func (r *ReLU) Forward(x []float64, train bool) []float64 {
	out := make([]float64, len(x))
	r.mask = make([]bool, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
			r.mask[i] = true
		}
	}
	return out
}

func (r *ReLU) Backward(grad []float64) []float64 {
	dx := make([]float64, len(grad))
	for i, v := range grad {
		if r.mask[i] {
			dx[i] = v
		}
	}
	return dx
}

func (r *ReLU) Params() []*Param { return nil }

// MaxPool2 is a 2×2, stride-2 max pool over a C×H×W tensor. Odd trailing
// rows and columns are dropped, matching the usual floor behavior.
type MaxPool2 struct {
	ch, inH, inW int
	outH, outW   int

	argmax []int
	inLen  int
}

func NewMaxPool2(ch, inH, inW int) *MaxPool2 {
	return &MaxPool2{ch: ch, inH: inH, inW: inW, outH: inH / 2, outW: inW / 2}
}

func (p *MaxPool2) OutShape() (ch, h, w int) { return p.ch, p.outH, p.outW }

func (p *MaxPool2) Forward(x []float64, train bool) []float64 {
	p.inLen = len(x)
	out := make([]float64, p.ch*p.outH*p.outW)
	p.argmax = make([]int, len(out))
	for c := 0; c < p.ch; c++ {
		for oy := 0; oy < p.outH; oy++ {
			for ox := 0; ox < p.outW; ox++ {
				best := math.Inf(-1)
				bestIdx := 0
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						idx := c*p.inH*p.inW + (oy*2+dy)*p.inW + (ox*2 + dx)
						if x[idx] > best {
							best = x[idx]
							bestIdx = idx
						}
					}
				}
				o := c*p.outH*p.outW + oy*p.outW + ox
				out[o] = best
				p.argmax[o] = bestIdx
			}
		}
	}
	return out
}

func (p *MaxPool2) Backward(grad []float64) []float64 {
	dx := make([]float64, p.inLen)
	for o, idx := range p.argmax {
		dx[idx] += grad[o]
	}
	return dx
}

func (p *MaxPool2) Params() []*Param { return nil }

// Dense is a fully connected layer.
type Dense struct {
	in, out int
	w, b    *Param

	lastIn []float64
}

func NewDense(in, out int, rng *rand.Rand) *Dense {
	d := &Dense{in: in, out: out, w: newParam(out * in), b: newParam(out)}
	glorot(d.w.W, in, out, rng)
	return d
}

func (d *Dense) Forward(x []float64, train bool) []float64 {
	d.lastIn = x
	out := make([]float64, d.out)
	for o := 0; o < d.out; o++ {
		sum := d.b.W[o]
		row := d.w.W[o*d.in : (o+1)*d.in]
		for i, v := range x {
			sum += row[i] * v
		}
		out[o] = sum
	}
	return out
}

func (d *Dense) Backward(grad []float64) []float64 {
	dx := make([]float64, d.in)
	for o := 0; o < d.out; o++ {
		g := grad[o]
		d.b.G[o] += g
		wRow := d.w.W[o*d.in : (o+1)*d.in]
		gRow := d.w.G[o*d.in : (o+1)*d.in]
		for i := 0; i < d.in; i++ {
			gRow[i] += g * d.lastIn[i]
			dx[i] += g * wRow[i]
		}
	}
	return dx
}

func (d *Dense) Params() []*Param { return []*Param{d.w, d.b} }

// Dropout zeroes a fraction of activations during training and scales the
// survivors so the expected activation is unchanged. Inference passes
// through untouched.
type Dropout struct {
	rate float64
	rng  *rand.Rand
	mask []float64
}

func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{rate: rate, rng: rng}
}

func (d *Dropout) Forward(x []float64, train bool) []float64 {
	if !train {
		d.mask = nil
		return x
	}
	out := make([]float64, len(x))
	d.mask = make([]float64, len(x))
	keep := 1.0 / (1.0 - d.rate)
	for i, v := range x {
		if d.rng.Float64() >= d.rate {
			d.mask[i] = keep
			out[i] = v * keep
		}
	}
	return out
}

func (d *Dropout) Backward(grad []float64) []float64 {
	if d.mask == nil {
		return grad
	}
	dx := make([]float64, len(grad))
	for i, v := range grad {
		dx[i] = v * d.mask[i]
	}
	return dx
}

func (d *Dropout) Params() []*Param { return nil }
