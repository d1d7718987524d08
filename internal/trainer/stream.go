package trainer

import (
	"math/rand"

	"github.com/pgbhz/diagnose/internal/dataset"
)

// batchStream feeds a corpus to a model in batches. A training stream
// reshuffles its order at the start of every pass and may augment each
// sample; a validation stream does neither, so evaluation is deterministic.
type batchStream struct {
	corpus    *dataset.Corpus
	batchSize int
	shuffle   bool
	aug       *augmentor
	rng       *rand.Rand
	order     []int
}

func newBatchStream(corpus *dataset.Corpus, batchSize int, shuffle bool, aug *augmentor, seed int64) *batchStream {
	order := make([]int, len(corpus.Images))
	for i := range order {
		order[i] = i
	}
	return &batchStream{
		corpus:    corpus,
		batchSize: batchSize,
		shuffle:   shuffle,
		aug:       aug,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}
}

// Each runs one full pass over the corpus, calling fn once per batch. The
// final batch may be short.
func (s *batchStream) Each(fn func(imgs []dataset.Image, labels []int) error) error {
	if s.shuffle {
		s.rng.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}
	for start := 0; start < len(s.order); start += s.batchSize {
		end := start + s.batchSize
		if end > len(s.order) {
			end = len(s.order)
		}
		imgs := make([]dataset.Image, 0, end-start)
		labels := make([]int, 0, end-start)
		for _, idx := range s.order[start:end] {
			img := s.corpus.Images[idx]
			if s.aug != nil {
				img = s.aug.apply(img)
			}
			imgs = append(imgs, img)
			labels = append(labels, s.corpus.Labels[idx])
		}
		if err := fn(imgs, labels); err != nil {
			return err
		}
	}
	return nil
}
