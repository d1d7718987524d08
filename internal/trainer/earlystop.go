package trainer

import "math"

// bestTracker is an explicit best-checkpoint tracker: it watches validation
// loss per epoch, keeps a snapshot of the best-performing parameters, and
// signals a stop once the loss has failed to improve for patience
// consecutive epochs.
type bestTracker struct {
	patience int
	bestLoss float64
	bestSnap [][]float64
	since    int
}

func newBestTracker(patience int) *bestTracker {
	return &bestTracker{patience: patience, bestLoss: math.Inf(1)}
}

// observe records one epoch's validation loss, snapshotting on improvement.
// It returns true when patience epochs pass without improvement.
func (b *bestTracker) observe(loss float64, snapshot func() [][]float64) (stop bool) {
	if loss < b.bestLoss {
		b.bestLoss = loss
		b.bestSnap = snapshot()
		b.since = 0
		return false
	}
	b.since++
	return b.since >= b.patience
}

// restore rolls the model back to the best-observed checkpoint, if any.
func (b *bestTracker) restore(restore func([][]float64)) {
	if b.bestSnap != nil {
		restore(b.bestSnap)
	}
}
