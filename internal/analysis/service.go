package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/purab107/yoga-app/internal/metrics"
	"github.com/purab107/yoga-app/internal/model"
	"github.com/purab107/yoga-app/internal/video"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidVideo rejects uploads that are neither a video MIME type nor a
// known video extension.
var ErrInvalidVideo = errors.New("file must be a video (mp4, avi, mov, mkv, or webm)")

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

const (
	expectedPoseMinConfidence = 0.7
	jpegQuality               = 95
)

// FrameExtractor runs to completion once started; request cancellation is
// not observed mid-extraction.
type FrameExtractor interface {
	ExtractFrames(path string, stride int) ([]video.Frame, error)
	ExtractKeyFrames(path string, count int) ([]video.Frame, error)
	Info(path string) (video.Info, error)
}

type PoseClassifier interface {
	Load() error
	Predict(img image.Image) (model.Prediction, error)
}

type VideoUpload struct {
	Filename     string
	ContentType  string
	Body         io.Reader
	ExpectedPose string
	// KeyFrames, when positive, samples that many evenly spaced frames
	// instead of striding through the whole video.
	KeyFrames int
}

type Config struct {
	UploadDir  string
	SampleRate int
}

type Service struct {
	extractor  FrameExtractor
	classifier PoseClassifier
	logger     *zap.Logger
	uploadDir  string
	sampleRate int
}

func NewService(extractor FrameExtractor, classifier PoseClassifier, logger *zap.Logger, cfg Config) *Service {
	return &Service{
		extractor:  extractor,
		classifier: classifier,
		logger:     logger,
		uploadDir:  cfg.UploadDir,
		sampleRate: cfg.SampleRate,
	}
}

// IsVideo reports whether an upload looks like a video by MIME type or extension.
func IsVideo(filename, contentType string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	name := strings.ToLower(filename)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (s *Service) AnalyzeVideo(ctx context.Context, up VideoUpload) (*Report, error) {
	if !IsVideo(up.Filename, up.ContentType) {
		s.logger.Warn("invalid file type",
			zap.String("content_type", up.ContentType),
			zap.String("filename", up.Filename),
		)
		return nil, ErrInvalidVideo
	}

	tracer := otel.Tracer("analysis")
	ctx, span := tracer.Start(ctx, "Service.AnalyzeVideo")
	defer span.End()
	span.SetAttributes(attribute.String("video.name", up.Filename))

	log := s.logger.With(zap.String("video", up.Filename))

	if err := s.classifier.Load(); err != nil {
		return nil, err
	}

	saveStart := time.Now()
	_, spanSave := tracer.Start(ctx, "save_upload")
	videoPath, err := s.saveUpload(up)
	spanSave.End()
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	defer func() {
		if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove scratch file", zap.String("path", videoPath), zap.Error(err))
		}
	}()
	metrics.StageDuration.WithLabelValues("save").Observe(time.Since(saveStart).Seconds())

	if info, err := s.extractor.Info(videoPath); err != nil {
		log.Warn("could not read video info", zap.Error(err))
	} else {
		log.Info("processing video",
			zap.Int("total_frames", info.TotalFrames),
			zap.Float64("fps", info.FPS),
			zap.Int("width", info.Width),
			zap.Int("height", info.Height),
			zap.Int("duration_seconds", info.DurationSeconds),
		)
	}

	exStart := time.Now()
	_, spanEx := tracer.Start(ctx, "extract_frames")
	var frames []video.Frame
	if up.KeyFrames > 0 {
		frames, err = s.extractor.ExtractKeyFrames(videoPath, up.KeyFrames)
	} else {
		frames, err = s.extractor.ExtractFrames(videoPath, s.sampleRate)
	}
	spanEx.End()
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, errors.New("no frames extracted from video")
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	log.Info("extracted frames", zap.Int("count", len(frames)))

	clStart := time.Now()
	_, spanCl := tracer.Start(ctx, "classify_frames")
	results := make([]FrameResult, 0, len(frames))
	for idx, frame := range frames {
		pred, err := s.classifier.Predict(frame.Image)
		if err != nil {
			spanCl.End()
			return nil, fmt.Errorf("classify frame %d: %w", idx, err)
		}
		uri, err := dataURI(frame.Image)
		if err != nil {
			spanCl.End()
			return nil, fmt.Errorf("encode frame %d: %w", idx, err)
		}
		results = append(results, FrameResult{
			FrameNumber:  idx,
			PoseDetected: pred.PoseClass,
			Confidence:   pred.Confidence,
			IsCorrect:    pred.IsCorrect,
			Feedback:     pred.Feedback,
			Image:        uri,
		})
	}
	spanCl.End()
	metrics.FramesAnalyzedTotal.Add(float64(len(results)))
	metrics.StageDuration.WithLabelValues("classify").Observe(time.Since(clStart).Seconds())

	report := BuildReport(up.Filename, up.ExpectedPose, results)
	log.Info("video analyzed",
		zap.Int("frames", report.TotalFramesAnalyzed),
		zap.Float64("accuracy", report.AccuracyPercentage),
	)
	return report, nil
}

// AnalyzeFrame decodes a still image held in memory and classifies it.
func (s *Service) AnalyzeFrame(ctx context.Context, r io.Reader) (model.Prediction, error) {
	_, span := otel.Tracer("analysis").Start(ctx, "Service.AnalyzeFrame")
	defer span.End()

	if err := s.classifier.Load(); err != nil {
		return model.Prediction{}, err
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("decode image: %w", err)
	}

	pred, err := s.classifier.Predict(img)
	if err != nil {
		return model.Prediction{}, err
	}
	metrics.FramesAnalyzedTotal.Inc()
	return pred, nil
}

func (s *Service) saveUpload(up VideoUpload) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("temp_%s_%s", uuid.NewString(), filepath.Base(up.Filename))
	path := filepath.Join(s.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, up.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
