package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Brownie44l1/photo-classifier/internal/labels"
	"github.com/Brownie44l1/photo-classifier/internal/model"
	"github.com/Brownie44l1/photo-classifier/internal/pipeline"
	"github.com/Brownie44l1/photo-classifier/internal/ranking"
)

type PredictionResponse struct {
	Class       string       `json:"class"`
	Confidence  float64      `json:"confidence"`
	TopK        int          `json:"top_k"`
	Predictions []labels.Row `json:"predictions"`
	Cached      bool         `json:"cached"`
	ElapsedMS   float64      `json:"elapsed_ms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	pipeline      *pipeline.Pipeline
	logger        *zap.Logger
	maxUploadSize int64
}

func NewHandler(p *pipeline.Pipeline, maxUploadSize int64, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline:      p,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", EnableCORS(h.Health))
	mux.HandleFunc("/predict", EnableCORS(h.Predict))
	mux.HandleFunc("/predict/image", EnableCORS(h.PredictFromImage))
	return mux
}

func EnableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	meta := h.pipeline.Metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"model":   meta.Name,
		"classes": len(meta.Classes),
		"top_k":   h.pipeline.DefaultK(),
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := h.pipeline.Classify(r.Context(), req.Image, req.K)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPredictionResponse(result))
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	k, err := parseK(r.FormValue("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "k must be an integer")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	h.logger.Info("Received image",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.Int("k", k))

	result, err := h.pipeline.ClassifyImage(r.Context(), data, k)
	if err != nil {
		h.respondPipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newPredictionResponse(result))
}

func newPredictionResponse(result pipeline.Result) PredictionResponse {
	resp := PredictionResponse{
		TopK:        result.K,
		Predictions: result.Rows,
		Cached:      result.Cached,
		ElapsedMS:   float64(result.Elapsed.Microseconds()) / 1000,
	}
	if top, ok := result.Top(); ok {
		resp.Class = top.Label
		resp.Confidence = top.Probability
	}
	return resp
}

// StatusFor maps pipeline errors to an HTTP status and client message.
func StatusFor(err error) (int, string) {
	var predErr *pipeline.PredictionError
	switch {
	case errors.Is(err, ranking.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, pipeline.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "Image dimensions too large"
	case errors.Is(err, pipeline.ErrInvalidImage):
		return http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, GIF"
	case errors.As(err, &predErr) && predErr.Kind == model.FailureMalformedInput:
		return http.StatusBadRequest, predErr.Error()
	case errors.As(err, &predErr) && predErr.Kind == model.FailureCanceled:
		return http.StatusRequestTimeout, "Request canceled"
	case errors.Is(err, pipeline.ErrNoPrediction):
		return http.StatusServiceUnavailable, "Prediction failed"
	case errors.Is(err, labels.ErrOutOfRange):
		return http.StatusInternalServerError, "Model returned an unreadable label"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("Prediction error", zap.Error(err))
	} else {
		h.logger.Warn("Rejected prediction request", zap.Error(err))
	}
	writeError(w, status, msg)
}

func parseK(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
