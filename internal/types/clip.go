package types

import "image"

// Clip is a decoded video: an ordered run of equally sized frames and the
// frame rate they were captured at
type Clip struct {
	Key    string
	Frames []*image.RGBA
	FPS    float64
}

// Len returns the number of frames
func (c Clip) Len() int {
	return len(c.Frames)
}

// Size returns the frame width and height, or zeros for an empty clip
func (c Clip) Size() (int, int) {
	if len(c.Frames) == 0 {
		return 0, 0
	}
	b := c.Frames[0].Bounds()
	return b.Dx(), b.Dy()
}

// WithFrames returns a copy of the clip carrying the given frames
func (c Clip) WithFrames(frames []*image.RGBA) Clip {
	return Clip{Key: c.Key, Frames: frames, FPS: c.FPS}
}
