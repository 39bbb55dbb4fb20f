package model

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	t.Run("json with inline classes", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "mobilenet.json", `{
			"input_shape": [1, 3, 224, 224],
			"output_shape": [1, 2],
			"classes": ["n02124075 Egyptian cat", "n02127052 lynx"],
			"image_size": 224
		}`)

		meta, err := LoadMetadata(path)

		require.NoError(t, err)
		assert.Equal(t, "mobilenet", meta.Name)
		assert.Equal(t, "input", meta.InputName)
		assert.Equal(t, "output", meta.OutputName)
		assert.Equal(t, 3*224*224, meta.InputSize())
		assert.Len(t, meta.Classes, 2)
	})

	t.Run("yaml with labels file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "synset_words.txt", "n02124075 Egyptian cat\n\nn02123045 tabby, tabby cat\nn02127052 lynx, catamount\n")
		path := writeFile(t, dir, "model.yaml", `
name: mobilenet-v2
input_shape: [1, 3, 224, 224]
output_shape: [1, 3]
input_name: data
output_name: prob
labels_file: synset_words.txt
image_size: 224
center_crop: true
`)

		meta, err := LoadMetadata(path)

		require.NoError(t, err)
		assert.Equal(t, "mobilenet-v2", meta.Name)
		assert.Equal(t, "data", meta.InputName)
		assert.Equal(t, "prob", meta.OutputName)
		assert.True(t, meta.CenterCrop)
		assert.Equal(t, []string{
			"n02124075 Egyptian cat",
			"n02123045 tabby, tabby cat",
			"n02127052 lynx, catamount",
		}, meta.Classes)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadMetadata(filepath.Join(t.TempDir(), "nope.json"))

		assert.Error(t, err)
	})

	t.Run("duplicate classes rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "dup.json", `{
			"input_shape": [1, 3, 2, 2],
			"output_shape": [1, 2],
			"classes": ["n02127052 lynx", "n02127052 lynx"],
			"image_size": 2
		}`)

		_, err := LoadMetadata(path)

		assert.ErrorContains(t, err, "duplicate class")
	})
}

func TestMetadata_Validate(t *testing.T) {
	valid := Metadata{
		InputShape:  []int64{1, 3, 2, 2},
		OutputShape: []int64{1, 1},
		Classes:     []string{"n00000001 thing"},
		ImageSize:   2,
	}

	tests := []struct {
		name   string
		mutate func(m *Metadata)
	}{
		{name: "no input shape", mutate: func(m *Metadata) { m.InputShape = nil }},
		{name: "no output shape", mutate: func(m *Metadata) { m.OutputShape = nil }},
		{name: "zero image size", mutate: func(m *Metadata) { m.ImageSize = 0 }},
		{name: "no classes", mutate: func(m *Metadata) { m.Classes = nil }},
		{name: "input shape disagrees with image size", mutate: func(m *Metadata) { m.ImageSize = 3 }},
		{name: "input shape missing a channel", mutate: func(m *Metadata) { m.InputShape = []int64{1, 2, 2, 2} }},
		{name: "more classes than outputs", mutate: func(m *Metadata) {
			m.Classes = []string{"n00000001 thing", "n00000002 other"}
		}},
		{name: "more outputs than classes", mutate: func(m *Metadata) { m.OutputShape = []int64{1, 2} }},
	}

	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestScoresFor(t *testing.T) {
	classes := []string{"a", "b", "c"}

	t.Run("extra outputs ignored", func(t *testing.T) {
		got := scoresFor(classes, []float32{0.5, 0.25, 0.25, 0.9})

		assert.Equal(t, []ranking.Prediction{
			{Label: "a", Probability: 0.5},
			{Label: "b", Probability: 0.25},
			{Label: "c", Probability: 0.25},
		}, got)
	})

	t.Run("short output truncates classes", func(t *testing.T) {
		got := scoresFor(classes, []float32{0.5})

		assert.Len(t, got, 1)
	})
}

func TestOutcome(t *testing.T) {
	ok := Success([]ranking.Prediction{{Label: "a", Probability: 1}})
	assert.True(t, ok.OK())
	assert.NoError(t, ok.Err)

	failed := Failed(FailureInference, assert.AnError)
	assert.False(t, failed.OK())
	assert.Equal(t, "inference failed", failed.Failure.String())
	assert.Equal(t, "canceled", FailureCanceled.String())
	assert.Equal(t, "failure(42)", FailureKind(42).String())
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess(t *testing.T) {
	t.Run("planar layout", func(t *testing.T) {
		img := solid(8, 8, color.RGBA{R: 255, G: 0, B: 255, A: 255})

		data := Preprocess(img, 4, false)

		require.Len(t, data, 3*4*4)
		assert.InDelta(t, 1.0, data[0], 0.01)
		assert.InDelta(t, 0.0, data[16], 0.01)
		assert.InDelta(t, 1.0, data[32], 0.01)
	})

	t.Run("center crop keeps middle", func(t *testing.T) {
		img := solid(30, 10, color.RGBA{R: 255, A: 255})
		for y := 0; y < 10; y++ {
			for x := 10; x < 20; x++ {
				img.Set(x, y, color.RGBA{B: 255, A: 255})
			}
		}

		data := Preprocess(img, 2, true)

		require.Len(t, data, 3*2*2)
		for i := 0; i < 4; i++ {
			assert.InDelta(t, 0.0, data[i], 0.01)
			assert.InDelta(t, 1.0, data[8+i], 0.01)
		}
	})
}

func TestCropSquare(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 4))

	cropped := cropSquare(img)

	assert.Equal(t, image.Rect(3, 0, 7, 4), cropped.Bounds())

	square := image.NewRGBA(image.Rect(0, 0, 5, 5))
	assert.Same(t, square, cropSquare(square))
}

func TestLoadMetadata_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mobilenet.json", `{
		"input_shape": [1, 3, 224, 224],
		"output_shape": [1, 1001],
		"classes": ["n02124075 Egyptian cat", "n02127052 lynx"],
		"image_size": 224
	}`)

	_, err := LoadMetadata(path)

	assert.ErrorContains(t, err, "output_shape")
}

func TestServer_ClassifyFailures(t *testing.T) {
	meta := Metadata{
		InputShape:  []int64{1, 3, 2, 2},
		OutputShape: []int64{1, 1},
		Classes:     []string{"n00000001 thing"},
		ImageSize:   2,
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name         string
		ctx          context.Context
		input        []float32
		expectedKind FailureKind
		expectedErr  error
	}{
		{
			name:         "nil input",
			ctx:          context.Background(),
			input:        nil,
			expectedKind: FailureMalformedInput,
		},
		{
			name:         "wrong input length",
			ctx:          context.Background(),
			input:        make([]float32, 11),
			expectedKind: FailureMalformedInput,
		},
		{
			name:         "canceled context",
			ctx:          canceled,
			input:        make([]float32, 12),
			expectedKind: FailureCanceled,
			expectedErr:  context.Canceled,
		},
		{
			name:         "closed server",
			ctx:          context.Background(),
			input:        make([]float32, 12),
			expectedKind: FailureModelUnavailable,
			expectedErr:  ErrClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{metadata: meta}

			outcome := s.Classify(tt.ctx, tt.input)

			assert.False(t, outcome.OK())
			assert.Equal(t, tt.expectedKind, outcome.Failure)
			assert.Error(t, outcome.Err)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, outcome.Err, tt.expectedErr)
			}
			assert.Empty(t, outcome.Scores)
		})
	}
}

func TestServer_CloseWithoutSession(t *testing.T) {
	s := &Server{metadata: Metadata{InputShape: []int64{1}}}

	s.Close()

	outcome := s.Classify(context.Background(), []float32{0})
	assert.Equal(t, FailureModelUnavailable, outcome.Failure)
}
