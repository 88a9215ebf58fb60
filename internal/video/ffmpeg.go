package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/types"
)

// OutputCodec is the encoder used for written clips, the MPEG-4 Part 2
// codec behind the "mp4v" fourcc
const OutputCodec = "mpeg4"

// ErrNoVideoStream is returned when a file has no video stream to decode
var ErrNoVideoStream = errors.New("no video stream")

// CheckAvailable reports whether ffmpeg and ffprobe are on PATH
func CheckAvailable() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// StreamInfo is what the codec needs to know about a video stream. Width
// and Height are the display size: ffmpeg applies the stream's rotation
// while decoding, so a clip rotated by 90 degrees decodes with its coded
// dimensions swapped.
type StreamInfo struct {
	Width    int
	Height   int
	FPS      float64
	Rotation int
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// Codec decodes videos to RGBA frames and encodes frames back to video
// files by piping raw frames through ffmpeg
type Codec struct {
	logger *zap.Logger
}

func NewCodec(logger *zap.Logger) *Codec {
	return &Codec{logger: logger}
}

// Probe reads the size and frame rate of the first video stream of path
func (c *Codec) Probe(path string) (StreamInfo, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out string) (StreamInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps, err := parseRate(s.AvgFrameRate)
		if err != nil || fps == 0 {
			fps, err = parseRate(s.RFrameRate)
			if err != nil {
				return StreamInfo{}, err
			}
		}
		if s.Width <= 0 || s.Height <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
		}
		info := StreamInfo{Width: s.Width, Height: s.Height, FPS: fps}
		if s.Tags.Rotate != "" {
			if r, err := strconv.Atoi(s.Tags.Rotate); err == nil {
				info.Rotation = r
			}
		}
		for _, sd := range s.SideDataList {
			if sd.Rotation != 0 {
				info.Rotation = int(sd.Rotation)
			}
		}
		if quarterTurn(info.Rotation) {
			info.Width, info.Height = info.Height, info.Width
		}
		return info, nil
	}
	return StreamInfo{}, ErrNoVideoStream
}

// quarterTurn reports whether rotating by deg degrees swaps width and height
func quarterTurn(deg int) bool {
	deg %= 180
	return deg == 90 || deg == -90
}

// parseRate parses ffprobe rates such as "30000/1001" or "25"
func parseRate(rate string) (float64, error) {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", rate, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

// Decode reads every frame of path. A file whose stream decodes to no
// frames yields an empty clip rather than an error.
func (c *Codec) Decode(ctx context.Context, path string) (types.Clip, error) {
	if err := ctx.Err(); err != nil {
		return types.Clip{}, err
	}

	info, err := c.Probe(path)
	if err != nil {
		return types.Clip{}, err
	}

	var stdout, stderr bytes.Buffer
	err = ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgba"}).
		WithOutput(&stdout).
		WithErrorOutput(&stderr).
		Run()
	if err != nil {
		return types.Clip{}, fmt.Errorf("ffmpeg decode %s: %w, output: %s", path, err, stderr.String())
	}

	frames := splitFrames(stdout.Bytes(), info.Width, info.Height)
	c.logger.Debug("video decoded",
		zap.String("path", path),
		zap.Int("frames", len(frames)),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
		zap.Int("rotation", info.Rotation),
	)
	return types.Clip{Key: path, Frames: frames, FPS: info.FPS}, nil
}

// splitFrames cuts a raw RGBA byte stream into frames. A trailing partial
// frame is dropped.
func splitFrames(raw []byte, width, height int) []*image.RGBA {
	size := width * height * 4
	if size == 0 {
		return nil
	}

	n := len(raw) / size
	frames := make([]*image.RGBA, n)
	for i := 0; i < n; i++ {
		frames[i] = &image.RGBA{
			Pix:    raw[i*size : (i+1)*size : (i+1)*size],
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		}
	}
	return frames
}

// Encode writes clip to path at the clip's frame rate. Empty clips write
// nothing.
func (c *Codec) Encode(ctx context.Context, clip types.Clip, path string) error {
	if clip.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	width, height := clip.Size()
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeFrames(pw, clip))
	}()
	defer pr.Close()

	var stderr bytes.Buffer
	err := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": strconv.FormatFloat(clip.FPS, 'f', -1, 64),
	}).
		Output(path, ffmpeg.KwArgs{
			"c:v":     OutputCodec,
			"q:v":     3,
			"pix_fmt": "yuv420p",
			"vf":      "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		}).
		OverWriteOutput().
		WithInput(pr).
		WithErrorOutput(&stderr).
		Run()
	if err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w, output: %s", path, err, stderr.String())
	}
	return nil
}

// writeFrames streams the frames as tightly packed RGBA rows
func writeFrames(w io.Writer, clip types.Clip) error {
	for _, f := range clip.Frames {
		b := f.Bounds()
		rowLen := b.Dx() * 4
		if f.Stride == rowLen && b.Min == (image.Point{}) {
			if _, err := w.Write(f.Pix[:rowLen*b.Dy()]); err != nil {
				return err
			}
			continue
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := f.PixOffset(b.Min.X, y)
			if _, err := w.Write(f.Pix[off : off+rowLen]); err != nil {
				return err
			}
		}
	}
	return nil
}
