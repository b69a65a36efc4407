package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/purab107/yoga-app/internal/analysis"
	"github.com/purab107/yoga-app/internal/metrics"
	"github.com/purab107/yoga-app/internal/model"
	"go.uber.org/zap"
)

const invalidVideoMessage = "File must be a video (mp4, avi, mov, mkv, or webm)"

type Handler struct {
	service        *analysis.Service
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewHandler(service *analysis.Service, logger *zap.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the API mux wrapped in CORS handling.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", instrument("root", h.Root))
	mux.HandleFunc("GET /poses", instrument("poses", h.Poses))
	mux.HandleFunc("POST /analyze-pose", instrument("analyze_pose", h.AnalyzePose))
	mux.HandleFunc("POST /analyze-webcam-frame", instrument("analyze_webcam_frame", h.AnalyzeWebcamFrame))
	return enableCORS(mux)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Yoga Pose Correction API is running",
	})
}

func (h *Handler) Poses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"poses": model.PoseLabels})
}

func (h *Handler) AnalyzePose(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No video file provided. Use 'video' as the form field name")
		return
	}
	defer file.Close()

	upload := analysis.VideoUpload{
		Filename:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Body:         file,
		ExpectedPose: r.FormValue("expected_pose"),
	}
	if kf := r.FormValue("key_frames"); kf != "" {
		n, err := strconv.Atoi(kf)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "key_frames must be a non-negative integer")
			return
		}
		upload.KeyFrames = n
	}

	h.logger.Info("received video",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("expected_pose", upload.ExpectedPose),
	)

	report, err := h.service.AnalyzeVideo(r.Context(), upload)
	if errors.Is(err, analysis.ErrInvalidVideo) {
		writeError(w, http.StatusBadRequest, invalidVideoMessage)
		return
	}
	if err != nil {
		h.logger.Error("error processing video", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing video: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) AnalyzeWebcamFrame(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("frame")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'frame' as the form field name")
		return
	}
	defer file.Close()

	pred, err := h.service.AnalyzeFrame(r.Context(), file)
	if err != nil {
		h.logger.Error("error processing frame", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing frame: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	}
}
