// Package video samples frames out of video files.
package video

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Source is an opened, decodable video.
type Source interface {
	// Read decodes the next frame. ok is false at end of stream.
	Read() (img image.Image, ok bool)
	// Seek positions the source so the next Read returns frame index.
	Seek(index int) error
	FrameCount() int
	FPS() float64
	Size() (width, height int)
	Close() error
}

// Opener opens the video at path.
type Opener func(path string) (Source, error)

type Frame struct {
	Index int
	Image image.Image
}

type Info struct {
	TotalFrames     int     `json:"total_frames"`
	FPS             float64 `json:"fps"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds int     `json:"duration_seconds"`
}

type Extractor struct {
	open   Opener
	logger *zap.Logger
}

func NewExtractor(open Opener, logger *zap.Logger) *Extractor {
	return &Extractor{open: open, logger: logger}
}

// ExtractFrames reads the video start to end and keeps every frame whose
// index is a multiple of stride.
func (e *Extractor) ExtractFrames(path string, stride int) ([]Frame, error) {
	if stride < 1 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}

	src, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open video %s: %w", path, err)
	}
	defer e.close(src)

	var frames []Frame
	total := src.FrameCount()
	e.logger.Debug("video opened",
		zap.String("path", path),
		zap.Int("total_frames", total),
		zap.Float64("fps", src.FPS()),
	)

	for idx := 0; ; idx++ {
		img, ok := src.Read()
		if !ok {
			break
		}
		if idx%stride == 0 {
			frames = append(frames, Frame{Index: idx, Image: img})
		}
	}

	e.logger.Info("frames extracted",
		zap.Int("count", len(frames)),
		zap.Int("total_frames", total),
		zap.Int("stride", stride),
	)
	return frames, nil
}

// ExtractKeyFrames returns count frames at evenly spaced indices spanning
// the whole video. Indices whose read fails are skipped.
func (e *Extractor) ExtractKeyFrames(path string, count int) ([]Frame, error) {
	if count < 1 {
		return nil, fmt.Errorf("key frame count must be positive, got %d", count)
	}

	src, err := e.open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open video %s: %w", path, err)
	}
	defer e.close(src)

	var frames []Frame
	total := src.FrameCount()
	if total < 1 {
		return nil, errors.New("video frame count is unknown")
	}

	for _, idx := range KeyFrameIndices(total, count) {
		if err := src.Seek(idx); err != nil {
			e.logger.Warn("seek failed", zap.Int("index", idx), zap.Error(err))
			continue
		}
		img, ok := src.Read()
		if !ok {
			continue
		}
		frames = append(frames, Frame{Index: idx, Image: img})
	}

	e.logger.Info("key frames extracted", zap.Int("count", len(frames)), zap.Int("requested", count))
	return frames, nil
}

// KeyFrameIndices spreads count indices over [0, total-1], both ends included.
func KeyFrameIndices(total, count int) []int {
	if count == 1 {
		return []int{0}
	}
	indices := make([]int, count)
	for i := range indices {
		indices[i] = i * (total - 1) / (count - 1)
	}
	return indices
}

// Info reports the video's frame count, rate, dimensions and whole-second
// duration without decoding any frames.
func (e *Extractor) Info(path string) (Info, error) {
	src, err := e.open(path)
	if err != nil {
		return Info{}, fmt.Errorf("could not open video %s: %w", path, err)
	}
	defer e.close(src)

	info := Info{
		TotalFrames: src.FrameCount(),
		FPS:         src.FPS(),
	}
	info.Width, info.Height = src.Size()
	if info.FPS > 0 {
		info.DurationSeconds = int(float64(info.TotalFrames) / info.FPS)
	}
	return info, nil
}

func (e *Extractor) close(src Source) {
	if err := src.Close(); err != nil {
		e.logger.Warn("close video", zap.Error(err))
	}
}
