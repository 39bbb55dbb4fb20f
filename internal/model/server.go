package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

var ErrClosed = errors.New("model server closed")

// Server owns one ONNX Runtime session and its tensors. The tensors are
// reused between calls, so Classify holds mu for the whole run.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer loads the model at modelPath. libraryPath points at the
// onnxruntime shared library and may be empty to use the system default.
func NewServer(modelPath, metadataPath, libraryPath string) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
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
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Metadata() Metadata {
	return s.metadata
}

// Classify runs one inference. Scores are returned in class order; output
// values past the last class are ignored.
func (s *Server) Classify(ctx context.Context, input []float32) Outcome {
	if expected := s.metadata.InputSize(); len(input) != expected {
		return Failed(FailureMalformedInput, fmt.Errorf("expected %d values, got %d", expected, len(input)))
	}
	if err := ctx.Err(); err != nil {
		return Failed(FailureCanceled, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Failed(FailureModelUnavailable, ErrClosed)
	}
	// the caller may have given up while waiting for the lock
	if err := ctx.Err(); err != nil {
		return Failed(FailureCanceled, err)
	}

	copy(s.inputTensor.GetData(), input)

	if err := s.session.Run(); err != nil {
		return Failed(FailureInference, fmt.Errorf("inference failed: %w", err))
	}

	return Success(scoresFor(s.metadata.Classes, s.outputTensor.GetData()))
}

func scoresFor(classes []string, output []float32) []ranking.Prediction {
	n := min(len(classes), len(output))
	scores := make([]ranking.Prediction, n)
	for i := 0; i < n; i++ {
		scores[i] = ranking.Prediction{Label: classes[i], Probability: float64(output[i])}
	}
	return scores
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	s.session.Destroy()
	s.session = nil
	ort.DestroyEnvironment()
}
