package dataset

import (
	"bytes"
	"errors"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func corpusDir(t *testing.T) (root, cDir, ncDir string) {
	t.Helper()
	root = t.TempDir()
	cDir = filepath.Join(root, "c")
	ncDir = filepath.Join(root, "nc")
	if err := os.MkdirAll(cDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(ncDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return root, cDir, ncDir
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestGatherSamplesOrderAndLabels(t *testing.T) {
	root, cDir, ncDir := corpusDir(t)
	writePNG(t, filepath.Join(cDir, "a.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(cDir, "b.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(ncDir, "a.png"), color.RGBA{B: 255, A: 255})

	samples, err := GatherSamples(root, DefaultClasses)
	if err != nil {
		t.Fatalf("GatherSamples returned error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	// Class order first: both "c" files precede the "nc" file.
	if samples[0].Label != 1 || samples[1].Label != 1 || samples[2].Label != 0 {
		t.Errorf("unexpected label order: %+v", samples)
	}
}

func TestGatherSamplesSkipsSubdirectories(t *testing.T) {
	root, cDir, _ := corpusDir(t)
	writePNG(t, filepath.Join(cDir, "a.png"), color.RGBA{R: 255, A: 255})
	if err := os.MkdirAll(filepath.Join(cDir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	samples, err := GatherSamples(root, DefaultClasses)
	if err != nil {
		t.Fatalf("GatherSamples returned error: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample (no recursion), got %d", len(samples))
	}
}

func TestLoadDatasetSkipsUnreadable(t *testing.T) {
	root, cDir, ncDir := corpusDir(t)
	writePNG(t, filepath.Join(cDir, "valid.png"), color.RGBA{R: 255, A: 255})
	if err := os.WriteFile(filepath.Join(cDir, "invalid.jpeg"), []byte("oops"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	writePNG(t, filepath.Join(ncDir, "valid.png"), color.RGBA{B: 255, A: 255})

	buf := captureLog(t)
	corpus, err := LoadDataset(root, 16)
	if err != nil {
		t.Fatalf("LoadDataset returned error: %v", err)
	}
	if len(corpus.Images) != 2 || len(corpus.Labels) != 2 {
		t.Fatalf("expected 2 samples, got %d images / %d labels", len(corpus.Images), len(corpus.Labels))
	}
	if !strings.Contains(buf.String(), "skipped 1 unreadable images") {
		t.Errorf("expected one aggregate skip log, got %q", buf.String())
	}
}

func TestLoadDatasetMissingClassDirIsFine(t *testing.T) {
	root := t.TempDir()
	cDir := filepath.Join(root, "c")
	if err := os.MkdirAll(cDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePNG(t, filepath.Join(cDir, "a.png"), color.RGBA{R: 255, A: 255})

	corpus, err := LoadDataset(root, 16)
	if err != nil {
		t.Fatalf("LoadDataset returned error: %v", err)
	}
	if len(corpus.Images) != 1 || corpus.Labels[0] != 1 {
		t.Fatalf("unexpected corpus: %d images, labels %v", len(corpus.Images), corpus.Labels)
	}
}

func TestLoadDatasetNoImages(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nonexistent"), 16)
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestLoadDatasetAllUnreadable(t *testing.T) {
	root, cDir, _ := corpusDir(t)
	if err := os.WriteFile(filepath.Join(cDir, "junk.png"), []byte("junk"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	captureLog(t)
	_, err := LoadDataset(root, 16)
	if !errors.Is(err, ErrAllUnreadable) {
		t.Fatalf("expected ErrAllUnreadable, got %v", err)
	}
}

func TestLoadDatasetEndToEnd(t *testing.T) {
	root, cDir, ncDir := corpusDir(t)
	for _, name := range []string{"p1.png", "p2.png", "p3.png"} {
		writePNG(t, filepath.Join(cDir, name), color.RGBA{R: 255, A: 255})
	}
	if err := os.WriteFile(filepath.Join(cDir, "corrupt.png"), []byte("corrupt"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	for _, name := range []string{"n1.png", "n2.png"} {
		writePNG(t, filepath.Join(ncDir, name), color.RGBA{B: 255, A: 255})
	}

	buf := captureLog(t)
	corpus, err := LoadDataset(root, 16)
	if err != nil {
		t.Fatalf("LoadDataset returned error: %v", err)
	}
	if len(corpus.Images) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(corpus.Images))
	}

	sorted := append([]int(nil), corpus.Labels...)
	sort.Ints(sorted)
	want := []int{0, 0, 1, 1, 1}
	for i, label := range want {
		if sorted[i] != label {
			t.Fatalf("sorted labels = %v, want %v", sorted, want)
		}
	}
	if !strings.Contains(buf.String(), "skipped 1 unreadable images") {
		t.Errorf("expected exactly one skip logged, got %q", buf.String())
	}
}
