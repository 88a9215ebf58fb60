package numpy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/melody-ding/go-signprep/internal/types"
)

// Writer writes uint8 arrays to NumPy (.npy) files
type Writer struct {
	file *os.File
}

// NewWriter creates a new NumPy writer for the given file
func NewWriter(filepath string) (*Writer, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("create npy file: %w", err)
	}
	return &Writer{file: file}, nil
}

// Close closes the underlying file
func (w *Writer) Close() error {
	return w.file.Close()
}

// Write writes data to the NumPy file with the given shape
func (w *Writer) Write(data []byte, shape []int) error {
	if want := elements(shape); want != len(data) {
		return fmt.Errorf("shape %v needs %d bytes, got %d", shape, want, len(data))
	}

	header, err := createHeader(shape)
	if err != nil {
		return fmt.Errorf("create npy header: %w", err)
	}
	if _, err := w.file.Write(header); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("write npy data: %w", err)
	}
	return nil
}

// WriteClip writes the clip's frames as a (frames, height, width, 3) RGB array
func (w *Writer) WriteClip(clip types.Clip) error {
	width, height := clip.Size()
	shape := []int{clip.Len(), height, width, 3}

	header, err := createHeader(shape)
	if err != nil {
		return fmt.Errorf("create npy header: %w", err)
	}

	bw := bufio.NewWriter(w.file)
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}

	row := make([]byte, width*3)
	for _, f := range clip.Frames {
		b := f.Bounds()
		for y := 0; y < height; y++ {
			src := f.Pix[f.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < width; x++ {
				copy(row[x*3:x*3+3], src[x*4:x*4+3])
			}
			if _, err := bw.Write(row); err != nil {
				return fmt.Errorf("write npy data: %w", err)
			}
		}
	}
	return bw.Flush()
}

func elements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// createHeader creates a NumPy v1.0 header for a uint8 array of shape
func createHeader(shape []int) ([]byte, error) {
	var dict bytes.Buffer
	dict.WriteString("{'descr': '|u1', 'fortran_order': False, 'shape': (")
	for i, s := range shape {
		fmt.Fprintf(&dict, "%d", s)
		if i < len(shape)-1 || len(shape) == 1 {
			dict.WriteString(",")
		}
		if i < len(shape)-1 {
			dict.WriteString(" ")
		}
	}
	dict.WriteString("), }")

	// magic(6) + version(2) + header_len(2) + dict + padding + '\n' is a multiple of 64
	const prefix = 10
	padding := (64 - (prefix+dict.Len()+1)%64) % 64
	headerLen := dict.Len() + padding + 1
	if headerLen > 0xFFFF {
		return nil, fmt.Errorf("header too long: %d bytes", headerLen)
	}

	var full bytes.Buffer
	full.Write([]byte{0x93, 'N', 'U', 'M', 'P', 'Y', 0x01, 0x00})
	if err := binary.Write(&full, binary.LittleEndian, uint16(headerLen)); err != nil {
		return nil, fmt.Errorf("write header length: %w", err)
	}
	full.Write(dict.Bytes())
	full.Write(bytes.Repeat([]byte{' '}, padding))
	full.WriteByte('\n')

	return full.Bytes(), nil
}
