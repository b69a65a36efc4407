package model

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// Server owns one ONNX session with its input and output tensors bound at
// creation. Run serialises callers because the bound tensors are shared.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.CustomDataTensor
	outputTensor *ort.Tensor[float32]
}

// UseRuntimeLibrary points onnxruntime_go at a specific onnxruntime shared
// library. Must be called before the first load.
func UseRuntimeLibrary(path string) {
	ort.SetSharedLibraryPath(path)
}

func NewServer(modelPath, metadataPath string) (*Server, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	metadata, err := ParseMetadata(metaFile)
	if err != nil {
		return nil, err
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	// Two bytes per half-precision element.
	inputTensor, err := ort.NewCustomDataTensor(inputShape,
		make([]byte, 2*inputShape.FlattenedSize()), ort.TensorElementDataTypeFloat16)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// ParseMetadata decodes the metadata file, fills defaults and checks that the
// model's shapes agree with PoseLabels.
func ParseMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.InputName == "" {
		metadata.InputName = defaultInputName
	}
	if metadata.OutputName == "" {
		metadata.OutputName = defaultOutputName
	}
	if metadata.ImageSize == 0 {
		metadata.ImageSize = InputSize
	}
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m Metadata) Validate() error {
	if m.ImageSize != InputSize {
		return fmt.Errorf("image size %d, want %d", m.ImageSize, InputSize)
	}
	want := []int64{1, InputSize, InputSize, 3}
	if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("input shape %v, want %v", m.InputShape, want)
	}
	if len(m.OutputShape) == 0 {
		return fmt.Errorf("output shape missing")
	}
	if width := m.OutputShape[len(m.OutputShape)-1]; width != int64(len(PoseLabels)) {
		return fmt.Errorf("model outputs %d classes but %d pose labels are defined", width, len(PoseLabels))
	}
	if len(m.Classes) > 0 && !slices.Equal(m.Classes, PoseLabels) {
		return fmt.Errorf("metadata classes %v do not match pose labels %v", m.Classes, PoseLabels)
	}
	return nil
}

// Run copies a preprocessed NHWC batch into the input tensor, runs the
// session and returns a copy of the output vector.
func (s *Server) Run(input []float16.Float16) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.inputTensor.GetData()
	if len(input)*2 != len(buf) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(buf)/2)
	}
	for i, v := range input {
		binary.LittleEndian.PutUint16(buf[2*i:], v.Bits())
	}

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return slices.Clone(s.outputTensor.GetData()), nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
