package processor

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/rand"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/melody-ding/go-signprep/internal/types"
)

// Transform tags. They double as the suffixes of augmented file names.
const (
	TagMirror = "mirror"
	TagBright = "bright"
	TagGray   = "gray"
	TagZoom   = "zoom"
	TagFast   = "fast"
	TagSlow   = "slow"
	TagCrop   = "crop"
)

// Parameter ranges sampled by FromTag
const (
	BrightnessMin = 0.7
	BrightnessMax = 1.3
	ZoomMin       = 1.0
	ZoomMax       = 1.25
	FastMin       = 1.2
	FastMax       = 1.8
	SlowMin       = 0.5
	SlowMax       = 0.9

	DefaultCropMargin = 75
)

// Transform maps a clip to a new clip. Implementations never modify the
// frames of their input, so one decoded clip can feed many transforms.
type Transform interface {
	Tag() string
	Apply(clip types.Clip) (types.Clip, error)
}

// CropTransform removes Margin pixels from the left and right edges
type CropTransform struct {
	Margin int
}

func (t CropTransform) Tag() string { return TagCrop }

func (t CropTransform) Apply(clip types.Clip) (types.Clip, error) {
	return CropBorder(clip, t.Margin)
}

// MirrorTransform flips frames horizontally
type MirrorTransform struct{}

func (MirrorTransform) Tag() string { return TagMirror }

func (MirrorTransform) Apply(clip types.Clip) (types.Clip, error) {
	return Mirror(clip), nil
}

// BrightnessTransform scales pixel intensities by Factor
type BrightnessTransform struct {
	Factor float64
}

func (BrightnessTransform) Tag() string { return TagBright }

func (t BrightnessTransform) Apply(clip types.Clip) (types.Clip, error) {
	return Brightness(clip, t.Factor), nil
}

// GrayscaleTransform drops color while keeping three channels
type GrayscaleTransform struct{}

func (GrayscaleTransform) Tag() string { return TagGray }

func (GrayscaleTransform) Apply(clip types.Clip) (types.Clip, error) {
	return Grayscale(clip), nil
}

// ZoomTransform center-crops by Factor and scales back up
type ZoomTransform struct {
	Factor float64
}

func (ZoomTransform) Tag() string { return TagZoom }

func (t ZoomTransform) Apply(clip types.Clip) (types.Clip, error) {
	return Zoom(clip, t.Factor), nil
}

// SpeedTransform drops or repeats frames. Factors above 1 speed the clip
// up, factors at or below 1 slow it down.
type SpeedTransform struct {
	Factor float64
}

func (t SpeedTransform) Tag() string {
	if t.Factor > 1 {
		return TagFast
	}
	return TagSlow
}

func (t SpeedTransform) Apply(clip types.Clip) (types.Clip, error) {
	return Speed(clip, t.Factor), nil
}

// IdentityTransform returns its input. Unknown tags resolve to it.
type IdentityTransform struct {
	Name string
}

func (t IdentityTransform) Tag() string { return t.Name }

func (IdentityTransform) Apply(clip types.Clip) (types.Clip, error) {
	return clip, nil
}

// FromTag builds the transform named by tag, drawing its parameters from rng
func FromTag(tag string, rng *rand.Rand) Transform {
	switch tag {
	case TagMirror:
		return MirrorTransform{}
	case TagBright:
		return BrightnessTransform{Factor: uniform(rng, BrightnessMin, BrightnessMax)}
	case TagGray:
		return GrayscaleTransform{}
	case TagZoom:
		return ZoomTransform{Factor: uniform(rng, ZoomMin, ZoomMax)}
	case TagFast:
		return SpeedTransform{Factor: uniform(rng, FastMin, FastMax)}
	case TagSlow:
		return SpeedTransform{Factor: uniform(rng, SlowMin, SlowMax)}
	case TagCrop:
		return CropTransform{Margin: DefaultCropMargin}
	default:
		return IdentityTransform{Name: tag}
	}
}

// Apply runs the transform named by tag on clip
func Apply(clip types.Clip, tag string, rng *rand.Rand) (types.Clip, error) {
	return FromTag(tag, rng).Apply(clip)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Pipeline applies transforms in order
type Pipeline []Transform

// ComposeTransforms chains transforms into a single one
func ComposeTransforms(transforms ...Transform) Pipeline {
	return Pipeline(transforms)
}

// Tag joins the member tags in application order
func (p Pipeline) Tag() string {
	tags := make([]string, len(p))
	for i, t := range p {
		tags[i] = t.Tag()
	}
	return strings.Join(tags, "_")
}

func (p Pipeline) Apply(clip types.Clip) (types.Clip, error) {
	var err error
	for _, t := range p {
		clip, err = t.Apply(clip)
		if err != nil {
			return clip, fmt.Errorf("apply %s: %w", t.Tag(), err)
		}
	}
	return clip, nil
}

// CropBorder removes margin pixels from the left and right of every frame.
// Height is unchanged.
func CropBorder(clip types.Clip, margin int) (types.Clip, error) {
	if clip.Len() == 0 || margin == 0 {
		return clip, nil
	}
	w, _ := clip.Size()
	if margin < 0 || margin*2 >= w {
		return clip, fmt.Errorf("crop margin %d too large for frame width %d", margin, w)
	}

	out := make([]*image.RGBA, len(clip.Frames))
	for i, f := range clip.Frames {
		b := f.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx()-2*margin, b.Dy()))
		draw.Draw(dst, dst.Bounds(), f, image.Pt(b.Min.X+margin, b.Min.Y), draw.Src)
		out[i] = dst
	}
	return clip.WithFrames(out), nil
}

// Mirror flips every frame horizontally. Mirror(Mirror(c)) equals c.
func Mirror(clip types.Clip) types.Clip {
	out := make([]*image.RGBA, len(clip.Frames))
	for i, f := range clip.Frames {
		b := f.Bounds()
		w, h := b.Dx(), b.Dy()
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			src := f.Pix[f.PixOffset(b.Min.X, b.Min.Y+y):]
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				copy(row[(w-1-x)*4:(w-x)*4], src[x*4:x*4+4])
			}
		}
		out[i] = dst
	}
	return clip.WithFrames(out)
}

// Brightness multiplies every color channel by factor, rounding and
// saturating to [0, 255]. Alpha is left alone.
func Brightness(clip types.Clip, factor float64) types.Clip {
	var lut [256]uint8
	for v := range lut {
		lut[v] = saturate(math.RoundToEven(math.Abs(factor * float64(v))))
	}
	return mapPixels(clip, func(r, g, b uint8) (uint8, uint8, uint8) {
		return lut[r], lut[g], lut[b]
	})
}

// Grayscale converts frames to luminance and writes it back to all three
// channels so encoders still see a three channel image
func Grayscale(clip types.Clip) types.Clip {
	return mapPixels(clip, func(r, g, b uint8) (uint8, uint8, uint8) {
		// same weights as color.GrayModel: 0.299, 0.587, 0.114
		y := uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
		return y, y, y
	})
}

// Zoom center-crops each frame to 1/factor of its size and scales the
// crop back to the original dimensions
func Zoom(clip types.Clip, factor float64) types.Clip {
	if clip.Len() == 0 || factor <= 0 {
		return clip
	}
	w, h := clip.Size()
	nw, nh := int(float64(w)/factor), int(float64(h)/factor)
	if (nw == w && nh == h) || nw < 1 || nh < 1 {
		return clip
	}
	x1, y1 := (w-nw)/2, (h-nh)/2

	out := make([]*image.RGBA, len(clip.Frames))
	for i, f := range clip.Frames {
		b := f.Bounds()
		crop := image.Rect(b.Min.X+x1, b.Min.Y+y1, b.Min.X+x1+nw, b.Min.Y+y1+nh)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.BiLinear.Scale(dst, dst.Bounds(), f, crop, xdraw.Src, nil)
		out[i] = dst
	}
	return clip.WithFrames(out)
}

// Speed resamples the clip in time. A factor above 1 keeps every
// int(factor)-th frame; anything below 2 therefore keeps every frame.
// A factor at or below 1 repeats each frame int(1/factor) times.
func Speed(clip types.Clip, factor float64) types.Clip {
	if factor <= 0 {
		return clip
	}

	if factor > 1 {
		step := int(factor)
		out := make([]*image.RGBA, 0, (len(clip.Frames)+step-1)/step)
		for i := 0; i < len(clip.Frames); i += step {
			out = append(out, clip.Frames[i])
		}
		return clip.WithFrames(out)
	}

	repeat := int(1 / factor)
	out := make([]*image.RGBA, 0, len(clip.Frames)*repeat)
	for _, f := range clip.Frames {
		for r := 0; r < repeat; r++ {
			out = append(out, f)
		}
	}
	return clip.WithFrames(out)
}

func mapPixels(clip types.Clip, fn func(r, g, b uint8) (uint8, uint8, uint8)) types.Clip {
	out := make([]*image.RGBA, len(clip.Frames))
	for i, f := range clip.Frames {
		b := f.Bounds()
		w, h := b.Dx(), b.Dy()
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			src := f.Pix[f.PixOffset(b.Min.X, b.Min.Y+y) : f.PixOffset(b.Min.X, b.Min.Y+y)+w*4]
			row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
			for x := 0; x < w*4; x += 4 {
				row[x], row[x+1], row[x+2] = fn(src[x], src[x+1], src[x+2])
				row[x+3] = src[x+3]
			}
		}
		out[i] = dst
	}
	return clip.WithFrames(out)
}

func saturate(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
