package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// BackboneMetadata describes the exported backbone graph: tensor shapes and
// the image edge size it was exported for. It lives in a JSON file next to
// the .onnx model.
type BackboneMetadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

// ONNXBackbone runs a frozen feature-extraction graph (a MobileNetV2 export
// with its classification top removed) through onnxruntime. The session's
// tensors are reused between calls, so Features serializes on an internal
// lock.
type ONNXBackbone struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	Meta         BackboneMetadata
}

// NewONNXBackbone loads the backbone graph and its metadata and prepares a
// reusable inference session.
func NewONNXBackbone(modelPath, metadataPath string) (*ONNXBackbone, error) {
	// The environment is process-wide; reloading the backbone after a
	// cache invalidation must not initialize it twice.
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backbone metadata: %w", err)
	}

	var meta BackboneMetadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse backbone metadata: %w", err)
	}
	if len(meta.InputShape) != 4 || len(meta.OutputShape) != 4 {
		return nil, fmt.Errorf("backbone metadata must carry 4-D input and output shapes")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXBackbone{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		Meta:         meta,
	}, nil
}

// FeatureDim reports the backbone's output channel count.
func (b *ONNXBackbone) FeatureDim() int {
	return int(b.Meta.OutputShape[1])
}

// Features runs one rescaled HWC image through the graph and returns the
// channel-major feature map.
func (b *ONNXBackbone) Features(pix []float32) ([]float64, int, error) {
	size := b.Meta.ImageSize
	if len(pix) != 3*size*size {
		return nil, 0, fmt.Errorf("backbone expects %d values, got %d", 3*size*size, len(pix))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// HWC interleaved in, NCHW planar into the graph.
	input := b.inputTensor.GetData()
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := (y*size + x) * 3
			input[0*plane+y*size+x] = pix[i]
			input[1*plane+y*size+x] = pix[i+1]
			input[2*plane+y*size+x] = pix[i+2]
		}
	}

	if err := b.session.Run(); err != nil {
		return nil, 0, fmt.Errorf("backbone inference failed: %w", err)
	}

	out := b.outputTensor.GetData()
	features := make([]float64, len(out))
	for i, v := range out {
		features[i] = float64(v)
	}
	return features, b.FeatureDim(), nil
}

// Close releases the session and its tensors. The ONNX environment itself
// stays up for the life of the process.
func (b *ONNXBackbone) Close() {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
}
