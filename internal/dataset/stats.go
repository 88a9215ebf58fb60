package dataset

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// ClassCount is the number of videos found for one class directory
type ClassCount struct {
	Class  string
	Videos int
}

// CountOutput counts the .mp4 files of every class directory under root.
// Hidden directories and loose files are ignored.
func CountOutput(fs afero.Fs, root string) ([]ClassCount, error) {
	classes, err := classDirs(fs, root)
	if err != nil {
		return nil, err
	}

	counts := make([]ClassCount, 0, len(classes))
	for _, class := range classes {
		files, err := videoFiles(fs, filepath.Join(root, class))
		if err != nil {
			return nil, err
		}
		counts = append(counts, ClassCount{Class: class, Videos: len(files)})
	}
	return counts, nil
}

// TotalVideos sums the per-class counts
func TotalVideos(counts []ClassCount) int {
	total := 0
	for _, c := range counts {
		total += c.Videos
	}
	return total
}
