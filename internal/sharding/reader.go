package sharding

import (
	"archive/tar"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Entry is one sample found in a shard
type Entry struct {
	Key        string
	Class      string
	ClassIndex int
	Exts       []string
	Size       int64
}

// ReadIndex lists the samples of a shard in the order they were written.
// AppleDouble files ("._name") are ignored.
func ReadIndex(fs afero.Fs, shardPath string) ([]Entry, error) {
	var entries []Entry
	index := map[string]int{}

	err := walkShard(fs, shardPath, func(hdr *tar.Header, r io.Reader) error {
		key, ext := splitName(hdr.Name)
		i, ok := index[key]
		if !ok {
			i = len(entries)
			index[key] = i
			entries = append(entries, Entry{Key: key, Class: path.Dir(key), ClassIndex: -1})
		}
		e := &entries[i]

		if ext == ".cls" {
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("bad class index for %s: %w", key, err)
			}
			e.ClassIndex = idx
			return nil
		}
		e.Exts = append(e.Exts, ext)
		e.Size += hdr.Size
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Extract unpacks the media files of a shard into destRoot/<class>/, the
// layout CreateShards reads from. It returns the number of files written.
func Extract(fs afero.Fs, shardPath, destRoot string) (int, error) {
	written := 0
	err := walkShard(fs, shardPath, func(hdr *tar.Header, r io.Reader) error {
		if _, ext := splitName(hdr.Name); ext == ".cls" {
			return nil
		}
		dest := filepath.Join(destRoot, filepath.FromSlash(path.Clean(hdr.Name)))
		if !strings.HasPrefix(dest, filepath.Clean(destRoot)+string(filepath.Separator)) {
			return fmt.Errorf("entry %s escapes %s", hdr.Name, destRoot)
		}
		if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := fs.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		written++
		return f.Close()
	})
	return written, err
}

func walkShard(fs afero.Fs, shardPath string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := fs.Open(shardPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", shardPath, err)
		}
		if hdr.Typeflag != tar.TypeReg || strings.HasPrefix(path.Base(hdr.Name), "._") {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// splitName splits "class/stem.ext" into its sample key and extension.
// Extensions CreateShards writes are cut at the last dot so stems may hold
// dots. Anything else falls back to the WebDataset first-dot rule.
func splitName(name string) (key, ext string) {
	dir, base := path.Split(name)
	if ext := path.Ext(base); ext == ".cls" || knownExt(ext) {
		return dir + strings.TrimSuffix(base, ext), ext
	}
	if i := strings.Index(base, "."); i >= 0 {
		return dir + base[:i], base[i:]
	}
	return name, ""
}
