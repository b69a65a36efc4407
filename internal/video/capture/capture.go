// Package capture decodes video files with OpenCV.
package capture

import (
	"fmt"
	"image"

	"github.com/purab107/yoga-app/internal/video"
	"gocv.io/x/gocv"
)

type Capture struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open satisfies video.Opener.
func Open(path string) (video.Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture not opened")
	}
	return &Capture{vc: vc, mat: gocv.NewMat()}, nil
}

// Read decodes the next frame into an RGBA image; ToImage swaps OpenCV's BGR order.
func (c *Capture) Read() (image.Image, bool) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, false
	}
	return img, true
}

func (c *Capture) Seek(index int) error {
	c.vc.Set(gocv.VideoCapturePosFrames, float64(index))
	return nil
}

func (c *Capture) FrameCount() int {
	return int(c.vc.Get(gocv.VideoCaptureFrameCount))
}

func (c *Capture) FPS() float64 {
	return c.vc.Get(gocv.VideoCaptureFPS)
}

func (c *Capture) Size() (int, int) {
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (c *Capture) Close() error {
	if err := c.mat.Close(); err != nil {
		c.vc.Close()
		return err
	}
	return c.vc.Close()
}
