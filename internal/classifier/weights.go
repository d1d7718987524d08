package classifier

import (
	"encoding/gob"
	"fmt"
	"os"
)

// weightsFile is the on-disk format for the transfer head. The baseline
// model is never written.
type weightsFile struct {
	Version    int
	FeatureDim int
	Tensors    [][]float64
}

const weightsVersion = 1

// SaveWeights writes the transfer head's parameters to path, overwriting
// any previous artifact.
func (t *Transfer) SaveWeights(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing weights %s: %w", path, err)
	}
	defer f.Close()

	file := weightsFile{
		Version:    weightsVersion,
		FeatureDim: t.featureDim,
		Tensors:    t.head.Snapshot(),
	}
	if err := gob.NewEncoder(f).Encode(&file); err != nil {
		return fmt.Errorf("encoding weights %s: %w", path, err)
	}
	return nil
}

// LoadWeights restores the transfer head's parameters from a saved artifact.
func (t *Transfer) LoadWeights(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading weights %s: %w", path, err)
	}
	defer f.Close()

	var file weightsFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("decoding weights %s: %w", path, err)
	}
	if file.Version != weightsVersion {
		return fmt.Errorf("weights %s: unsupported version %d", path, file.Version)
	}
	if file.FeatureDim != t.featureDim {
		return fmt.Errorf("weights %s: trained for %d backbone channels, head expects %d",
			path, file.FeatureDim, t.featureDim)
	}
	t.head.Restore(file.Tensors)
	return nil
}
