package neural

import "math"

// Network chains layers into a binary classifier ending in a single logit.
type Network struct {
	Layers []Layer
}

// Sigmoid maps a logit to a probability.
func Sigmoid(logit float64) float64 {
	return 1.0 / (1.0 + math.Exp(-logit))
}

// BCEWithLogits returns the binary cross-entropy of a single logit against
// label y in {0,1}, plus the loss gradient with respect to the logit.
func BCEWithLogits(logit, y float64) (loss, grad float64) {
	p := Sigmoid(logit)
	clamped := math.Min(math.Max(p, 1e-7), 1-1e-7)
	loss = -(y*math.Log(clamped) + (1-y)*math.Log(1-clamped))
	return loss, p - y
}

func (n *Network) forward(x []float64, train bool) float64 {
	for _, layer := range n.Layers {
		x = layer.Forward(x, train)
	}
	return x[0]
}

// Predict runs one sample in inference mode and returns the positive-class
// probability.
func (n *Network) Predict(x []float64) float64 {
	return Sigmoid(n.forward(x, false))
}

// TrainBatch runs one optimizer step over the batch and returns the mean
// loss. Gradients are averaged across the batch before the step.
func (n *Network) TrainBatch(xs [][]float64, ys []float64, opt *Adam) float64 {
	params := n.Params()
	for _, p := range params {
		for i := range p.G {
			p.G[i] = 0
		}
	}

	total := 0.0
	for s, x := range xs {
		logit := n.forward(x, true)
		loss, grad := BCEWithLogits(logit, ys[s])
		total += loss

		g := []float64{grad}
		for i := len(n.Layers) - 1; i >= 0; i-- {
			g = n.Layers[i].Backward(g)
		}
	}

	scale := 1.0 / float64(len(xs))
	for _, p := range params {
		for i := range p.G {
			p.G[i] *= scale
		}
	}
	opt.Step(params)
	return total * scale
}

// Params collects every learnable tensor in layer order.
func (n *Network) Params() []*Param {
	var params []*Param
	for _, layer := range n.Layers {
		params = append(params, layer.Params()...)
	}
	return params
}

// Snapshot deep-copies the current parameter values so they can be restored
// later, independent of further training.
func (n *Network) Snapshot() [][]float64 {
	params := n.Params()
	snap := make([][]float64, len(params))
	for i, p := range params {
		snap[i] = append([]float64(nil), p.W...)
	}
	return snap
}

// Restore copies a snapshot back into the network's parameters.
func (n *Network) Restore(snap [][]float64) {
	params := n.Params()
	for i, p := range params {
		copy(p.W, snap[i])
	}
}
