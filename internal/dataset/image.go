package dataset

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// Image is a decoded, normalized image tensor: Size rows by Size columns by
// three RGB channels, laid out row-major with interleaved channels, every
// value scaled into [0,1].
type Image struct {
	Size int
	Pix  []float32
}

// DecodeError reports a file that could not be read or decoded as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to read image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// LoadImage decodes the file at path, resizes it to a size×size square and
// scales the RGB channels to floats in [0,1]. Any open or decode failure is
// reported as a *DecodeError.
func LoadImage(path string, size int) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Image{}, &DecodeError{Path: path, Err: err}
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	pix := make([]float32, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := (y*size + x) * 3
			pix[i] = float32(r) / 65535.0
			pix[i+1] = float32(g) / 65535.0
			pix[i+2] = float32(b) / 65535.0
		}
	}

	return Image{Size: size, Pix: pix}, nil
}
