// Package pipeline ties the classifier, the ranker and the label formatter
// together and hands back a finished, immutable Result.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Brownie44l1/photo-classifier/internal/labels"
	"github.com/Brownie44l1/photo-classifier/internal/model"
	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

var (
	// ErrNoPrediction means the classifier produced no scores. Callers keep
	// whatever they showed before.
	ErrNoPrediction = errors.New("no prediction available")
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageTooLarge is an ErrInvalidImage whose declared size is over the
	// pixel limit.
	ErrImageTooLarge = fmt.Errorf("%w: too many pixels", ErrInvalidImage)
)

// PredictionError carries the classifier failure behind ErrNoPrediction.
type PredictionError struct {
	Kind model.FailureKind
	Err  error
}

func (e *PredictionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrNoPrediction, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", ErrNoPrediction, e.Kind, e.Err)
}

func (e *PredictionError) Is(target error) bool {
	return target == ErrNoPrediction
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Result is the ranked, formatted output of one classification.
type Result struct {
	Rows    []labels.Row
	K       int
	Classes int
	Elapsed time.Duration
	Cached  bool
}

// Top returns the best row, if any.
func (r Result) Top() (labels.Row, bool) {
	if len(r.Rows) == 0 {
		return labels.Row{}, false
	}
	return r.Rows[0], true
}

func (r Result) clone() Result {
	r.Rows = slices.Clone(r.Rows)
	return r
}

// DefaultMaxPixels bounds the declared size of uploaded images.
const DefaultMaxPixels = 40_000_000

type Options struct {
	DefaultK  int
	CacheSize int
	MaxPixels int // zero selects DefaultMaxPixels
}

type Pipeline struct {
	classifier model.Classifier
	cache      *lru.Cache[string, Result]
	defaultK   int
	maxPixels  int
	logger     *zap.Logger
}

// New builds a pipeline. A CacheSize of zero disables caching.
func New(classifier model.Classifier, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if opts.DefaultK <= 0 {
		return nil, fmt.Errorf("%w: default k must be positive, got %d", ranking.ErrInvalidArgument, opts.DefaultK)
	}
	if opts.MaxPixels < 0 {
		return nil, fmt.Errorf("%w: max pixels must not be negative, got %d", ranking.ErrInvalidArgument, opts.MaxPixels)
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		classifier: classifier,
		defaultK:   opts.DefaultK,
		maxPixels:  opts.MaxPixels,
		logger:     logger,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		p.cache = cache
	}

	return p, nil
}

func (p *Pipeline) DefaultK() int {
	return p.defaultK
}

func (p *Pipeline) Metadata() model.Metadata {
	return p.classifier.Metadata()
}

// Classify runs an already preprocessed input buffer. k <= 0 selects the
// default.
func (p *Pipeline) Classify(ctx context.Context, input []float32, k int) (Result, error) {
	if k <= 0 {
		k = p.defaultK
	}

	start := time.Now()
	outcome := p.classifier.Classify(ctx, input)
	if !outcome.OK() {
		p.logger.Warn("Classification failed",
			zap.Stringer("kind", outcome.Failure),
			zap.Error(outcome.Err))
		return Result{}, &PredictionError{Kind: outcome.Failure, Err: outcome.Err}
	}

	top, err := ranking.TopK(k, outcome.Scores)
	if err != nil {
		return Result{}, err
	}

	rows, err := labels.Format(top)
	if err != nil {
		p.logger.Error("Failed to format labels", zap.Error(err))
		return Result{}, err
	}

	result := Result{
		Rows:    rows,
		K:       k,
		Classes: len(outcome.Scores),
		Elapsed: time.Since(start),
	}

	p.logger.Debug("Classified",
		zap.Int("k", k),
		zap.Int("classes", result.Classes),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// ClassifyImage decodes an encoded image (JPEG, PNG or GIF), converts it to
// the model's input layout and classifies it. Images declaring more than the
// pixel limit are rejected before decoding. Results are cached by content.
func (p *Pipeline) ClassifyImage(ctx context.Context, data []byte, k int) (Result, error) {
	if k <= 0 {
		k = p.defaultK
	}

	key := cacheKey(data, k)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			p.logger.Debug("Result cache hit", zap.String("key", key[:12]))
			res := cached.clone()
			res.Cached = true
			return res, nil
		}
	}

	// the header alone decides how much the decoder allocates
	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if pixels := int64(imgCfg.Width) * int64(imgCfg.Height); pixels > int64(p.maxPixels) {
		return Result{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit",
			ErrImageTooLarge, imgCfg.Width, imgCfg.Height, p.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	p.logger.Debug("Decoded image",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	meta := p.classifier.Metadata()
	input := model.Preprocess(img, meta.ImageSize, meta.CenterCrop)

	result, err := p.Classify(ctx, input, k)
	if err != nil {
		return Result{}, err
	}

	if p.cache != nil {
		p.cache.Add(key, result.clone())
	}
	return result, nil
}

func cacheKey(data []byte, k int) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(k)
}
