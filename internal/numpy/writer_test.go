package numpy

import (
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melody-ding/go-signprep/internal/types"
)

func readHeader(t *testing.T, data []byte) (string, int) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 10)
	require.Equal(t, "\x93NUMPY", string(data[0:6]))
	require.Equal(t, byte(0x01), data[6])
	require.Equal(t, byte(0x00), data[7])

	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	end := 10 + headerLen
	require.Zero(t, end%64, "header must be 64 byte aligned")
	require.Equal(t, byte('\n'), data[end-1])
	return string(data[10:end]), end
}

func TestWriterWithDifferentShapes(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		shape     []int
		wantShape string
	}{
		{name: "1D array", data: []byte{1, 2, 3}, shape: []int{3}, wantShape: "(3,)"},
		{name: "2D array", data: []byte{1, 2, 3, 4, 5, 6}, shape: []int{2, 3}, wantShape: "(2, 3)"},
		{name: "3D array", data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, shape: []int{2, 2, 2}, wantShape: "(2, 2, 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.npy")
			writer, err := NewWriter(path)
			require.NoError(t, err)
			require.NoError(t, writer.Write(tt.data, tt.shape))
			require.NoError(t, writer.Close())

			fileData, err := os.ReadFile(path)
			require.NoError(t, err)

			header, end := readHeader(t, fileData)
			assert.Contains(t, header, "'shape': "+tt.wantShape)
			assert.Contains(t, header, "'descr': '|u1'")
			assert.Equal(t, tt.data, fileData[end:])
		})
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	writer, err := NewWriter(filepath.Join(t.TempDir(), "bad.npy"))
	require.NoError(t, err)
	defer writer.Close()

	assert.Error(t, writer.Write([]byte{1, 2, 3}, []int{2, 2}))
}

func TestWriteClip(t *testing.T) {
	frames := make([]*image.RGBA, 2)
	for i := range frames {
		f := image.NewRGBA(image.Rect(0, 0, 3, 2))
		for p := 0; p < len(f.Pix); p += 4 {
			f.Pix[p], f.Pix[p+1], f.Pix[p+2], f.Pix[p+3] = byte(i), byte(p), 7, 255
		}
		frames[i] = f
	}

	path := filepath.Join(t.TempDir(), "clip.npy")
	writer, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.WriteClip(types.Clip{Key: "clip", Frames: frames, FPS: 25}))
	require.NoError(t, writer.Close())

	fileData, err := os.ReadFile(path)
	require.NoError(t, err)

	header, end := readHeader(t, fileData)
	assert.True(t, strings.Contains(header, "'shape': (2, 2, 3, 3)"), header)

	body := fileData[end:]
	require.Len(t, body, 2*2*3*3)
	assert.Equal(t, []byte{0, 0, 7, 0, 4, 7, 0, 8, 7}, body[:9])
	assert.Equal(t, byte(1), body[18], "second frame starts after the first")
}
