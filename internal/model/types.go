package model

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

type Metadata struct {
	Name        string   `json:"name" yaml:"name"`
	InputShape  []int64  `json:"input_shape" yaml:"input_shape"`
	OutputShape []int64  `json:"output_shape" yaml:"output_shape"`
	InputName   string   `json:"input_name" yaml:"input_name"`
	OutputName  string   `json:"output_name" yaml:"output_name"`
	Classes     []string `json:"classes" yaml:"classes"`
	LabelsFile  string   `json:"labels_file" yaml:"labels_file"`
	ImageSize   int      `json:"image_size" yaml:"image_size"`
	CenterCrop  bool     `json:"center_crop" yaml:"center_crop"`
}

// InputSize is the number of float32 values the input tensor holds.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	return shapeSize(m.InputShape)
}

func shapeSize(shape []int64) int {
	size := 1
	for _, dim := range shape {
		size *= int(dim)
	}
	return size
}

// Validate checks that the metadata can back a session.
func (m Metadata) Validate() error {
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return fmt.Errorf("input and output shapes are required")
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive, got %d", m.ImageSize)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("no classes defined")
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("input_shape %v holds %d values, image_size %d needs %d", m.InputShape, m.InputSize(), m.ImageSize, want)
	}
	if outputs := shapeSize(m.OutputShape); outputs != len(m.Classes) {
		return fmt.Errorf("output_shape %v holds %d scores for %d classes", m.OutputShape, outputs, len(m.Classes))
	}
	seen := make(map[string]struct{}, len(m.Classes))
	for i, c := range m.Classes {
		if _, ok := seen[c]; ok {
			return fmt.Errorf("duplicate class %q at index %d", c, i)
		}
		seen[c] = struct{}{}
	}
	return nil
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
	K     int       `json:"k"`
}

// Classifier runs an input buffer through a model and reports the scores.
type Classifier interface {
	Classify(ctx context.Context, input []float32) Outcome
	Metadata() Metadata
}

// FailureKind tells why a classification produced no scores.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureMalformedInput
	FailureModelUnavailable
	FailureInference
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureMalformedInput:
		return "malformed input"
	case FailureModelUnavailable:
		return "model unavailable"
	case FailureInference:
		return "inference failed"
	case FailureCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Outcome is either a list of scores in class order or a failure.
type Outcome struct {
	Scores  []ranking.Prediction
	Failure FailureKind
	Err     error
}

func Success(scores []ranking.Prediction) Outcome {
	return Outcome{Scores: scores}
}

func Failed(kind FailureKind, err error) Outcome {
	return Outcome{Failure: kind, Err: err}
}

func (o Outcome) OK() bool {
	return o.Failure == FailureNone
}
