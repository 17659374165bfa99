// Package source provides sequential video frame decoding. The only
// implementation decodes through an FFmpeg subprocess emitting raw RGB
// frames; tests use in-memory fakes.
package source

import (
	"context"
	"fmt"
	"image"
)

// FrameSample is one decoded frame. Ownership transfers to the consumer on
// receive; the decoder never touches a sample after handing it out.
type FrameSample struct {
	// Index is the position in the source, strictly increasing.
	Index int64
	// VideoTimeS is the presentation time in seconds of video time.
	VideoTimeS float64
	// Width and Height are the decoded dimensions.
	Width, Height int
	// Pixels is packed RGB24, row-major, len = Width*Height*3.
	Pixels []byte
}

// RGB returns the pixel at (x, y). No bounds checking; callers iterate
// within Width/Height.
func (f *FrameSample) RGB(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * 3
	return f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2]
}

// Image copies the sample into an image.RGBA for encoders that need the
// standard image interfaces.
func (f *FrameSample) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		si := y * f.Width * 3
		di := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[di] = f.Pixels[si]
			img.Pix[di+1] = f.Pixels[si+1]
			img.Pix[di+2] = f.Pixels[si+2]
			img.Pix[di+3] = 0xff
			si += 3
			di += 4
		}
	}
	return img
}

// Info describes an opened source.
type Info struct {
	Path     string  `json:"path"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration_s"`
	// TotalFrames is 0 when the container does not report a frame count
	// (live sources).
	TotalFrames int64 `json:"total_frames"`
}

// Source yields frames in presentation order.
type Source interface {
	// Info returns the source description determined at open time.
	Info() Info
	// Next returns the next frame, or io.EOF after the last one. Decode
	// failures return a *DecodeError carrying the frame index.
	Next(ctx context.Context) (*FrameSample, error)
	// Close releases the decode resources. Safe to call more than once.
	Close() error
}

// DecodeError is a fatal decoder failure with position context.
type DecodeError struct {
	Index int64
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed at frame %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
