package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const videoExt = ".mp4"

// isFile reports whether a regular file exists at path
func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}

// copyFile copies src to dst keeping the mode and modification time of src.
// The data lands in a temporary sibling first so an interrupted copy never
// leaves a truncated dst behind.
func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dst + ".part"
	out, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		fs.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		fs.Remove(tmp)
		return err
	}

	if err := fs.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("preserve times: %w", err)
	}
	return fs.Rename(tmp, dst)
}

// classDirs lists the non-hidden subdirectories of root, sorted by name
func classDirs(fs afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// videoFiles lists the .mp4 file names directly inside dir, sorted
func videoFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), videoExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
