// Package dataset loads the labeled image corpus the classifier trains on.
// The directory layout is fixed: a corpus root contains a "c" subdirectory
// with positive samples and an "nc" subdirectory with negative ones.
package dataset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

var (
	// ErrNoImages means the corpus root held no candidate files at all.
	ErrNoImages = errors.New("no images found")

	// ErrAllUnreadable means candidates existed but none of them decoded.
	ErrAllUnreadable = errors.New("all images failed to load")
)

// ClassLabel binds a subdirectory name to the integer label its files carry.
type ClassLabel struct {
	Name  string
	Label int
}

// DefaultClasses is the fixed class table: "c" is the positive class.
// Order matters: samples are gathered class by class in this order.
var DefaultClasses = []ClassLabel{
	{Name: "c", Label: 1},
	{Name: "nc", Label: 0},
}

// Sample is one candidate corpus file found during a scan.
type Sample struct {
	Path  string
	Label int
}

// Corpus is an in-memory labeled image set. Images and Labels are parallel
// and never empty.
type Corpus struct {
	Images []Image
	Labels []int
}

// GatherSamples walks the class subdirectories of root per the given table
// and returns every regular file directly inside them, class order first,
// directory order second. A missing class directory contributes nothing.
func GatherSamples(root string, classes []ClassLabel) ([]Sample, error) {
	var samples []Sample
	for _, class := range classes {
		dir := filepath.Join(root, class.Name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			samples = append(samples, Sample{
				Path:  filepath.Join(dir, entry.Name()),
				Label: class.Label,
			})
		}
	}
	return samples, nil
}

// LoadDataset scans root for labeled images and decodes them into a Corpus.
// Files that fail to decode are skipped and counted, never fatal on their
// own; the skip total is logged once per scan. The scan fails with
// ErrNoImages when no candidate files exist and with ErrAllUnreadable when
// candidates existed but every one of them was unreadable.
func LoadDataset(root string, size int) (*Corpus, error) {
	samples, err := GatherSamples(root, DefaultClasses)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoImages, root)
	}

	corpus := &Corpus{}
	skipped := 0
	for _, sample := range samples {
		img, err := LoadImage(sample.Path, size)
		if err != nil {
			skipped++
			continue
		}
		corpus.Images = append(corpus.Images, img)
		corpus.Labels = append(corpus.Labels, sample.Label)
	}

	if skipped > 0 {
		log.Printf("skipped %d unreadable images under %s", skipped, root)
	}
	if len(corpus.Images) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrAllUnreadable, root)
	}
	return corpus, nil
}
