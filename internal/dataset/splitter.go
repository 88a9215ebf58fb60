package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/metrics"
)

// Split names one partition of a class
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists the partitions in slicing order
var Splits = []Split{SplitTrain, SplitVal, SplitTest}

// DefaultSeed seeds the split shuffle unless configured otherwise
const DefaultSeed int64 = 42

// SplitRoots returns the split directories that sit next to outputDir:
// <outputDir>_train, <outputDir>_val and <outputDir>_test
func SplitRoots(outputDir string) map[Split]string {
	clean := filepath.Clean(outputDir)
	roots := make(map[Split]string, len(Splits))
	for _, s := range Splits {
		roots[s] = clean + "_" + string(s)
	}
	return roots
}

// Ratios are the nominal train and validation fractions; test takes the rest
type Ratios struct {
	Train float64
	Val   float64
}

// DefaultRatios is the 80/10/10 split
var DefaultRatios = Ratios{Train: 0.8, Val: 0.1}

// Partition returns how many of n videos go to train, val and test.
//
// With three or more videos every split gets at least one: each count is
// floored and raised to one, and any overshoot of n is taken back from
// train first, then val. Below three videos train gets one and test the
// rest. The counts always sum to n.
//
// Slicing the floored counts in order and giving test the remainder would
// leave test empty for small classes: three videos at 80/10/10 would split
// 2/1/0 and nine 7/1/1 only by luck. Partition returns 1/1/1 for three.
func Partition(n int, r Ratios) (train, val, test int) {
	if n <= 0 {
		return 0, 0, 0
	}
	if n < 3 {
		return 1, 0, n - 1
	}

	train = max(1, int(math.Floor(r.Train*float64(n))))
	val = max(1, int(math.Floor(r.Val*float64(n))))
	test = max(1, n-train-val)

	excess := train + val + test - n
	for excess > 0 && train > 1 {
		train--
		excess--
	}
	for excess > 0 && val > 1 {
		val--
		excess--
	}
	return train, val, test
}

// Assignment is one class's videos partitioned by split
type Assignment struct {
	Train []string
	Val   []string
	Test  []string
}

// Files returns the videos assigned to s
func (a Assignment) Files(s Split) []string {
	switch s {
	case SplitTrain:
		return a.Train
	case SplitVal:
		return a.Val
	case SplitTest:
		return a.Test
	}
	return nil
}

// Len returns the number of videos in the assignment
func (a Assignment) Len() int {
	return len(a.Train) + len(a.Val) + len(a.Test)
}

// Assign sorts names, shuffles them with a generator seeded by seed and
// slices the result into train, val and test. The input is not modified.
func Assign(names []string, r Ratios, seed int64) Assignment {
	shuffled := make([]string, len(names))
	copy(shuffled, names)
	sort.Strings(shuffled)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTrain, nVal, _ := Partition(len(shuffled), r)
	return Assignment{
		Train: shuffled[:nTrain],
		Val:   shuffled[nTrain : nTrain+nVal],
		Test:  shuffled[nTrain+nVal:],
	}
}

// ClassSplit is the assignment made for one class
type ClassSplit struct {
	Class string
	Assignment
}

// SplitReport summarizes a splitter run
type SplitReport struct {
	Classes []ClassSplit
	Skipped []string
	Totals  map[Split]int
}

type Splitter struct {
	fs     afero.Fs
	root   string
	roots  map[Split]string
	ratios Ratios
	seed   int64
	logger *zap.Logger
}

// NewSplitter splits the class tree under root into the given split roots
func NewSplitter(fs afero.Fs, root string, roots map[Split]string, ratios Ratios, seed int64, logger *zap.Logger) *Splitter {
	return &Splitter{fs: fs, root: root, roots: roots, ratios: ratios, seed: seed, logger: logger}
}

// Run partitions every class directory under root and copies its videos to
// <split root>/<class>/<file>. Each class is shuffled by its own generator
// seeded with the same seed, so a class's split does not depend on which
// other classes exist. Classes without videos are logged and skipped.
func (s *Splitter) Run() (*SplitReport, error) {
	classes, err := classDirs(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("list classes in %s: %w", s.root, err)
	}

	report := &SplitReport{Totals: make(map[Split]int, len(Splits))}
	for _, class := range classes {
		files, err := videoFiles(s.fs, filepath.Join(s.root, class))
		if err != nil {
			return nil, fmt.Errorf("list videos of %s: %w", class, err)
		}
		if len(files) == 0 {
			s.logger.Warn("class has no videos, skipping", zap.String("class", class))
			report.Skipped = append(report.Skipped, class)
			continue
		}

		a := Assign(files, s.ratios, s.seed)
		if err := s.copyAssignment(class, a); err != nil {
			return nil, err
		}

		for _, split := range Splits {
			n := len(a.Files(split))
			report.Totals[split] += n
			metrics.SplitFilesTotal.WithLabelValues(string(split)).Add(float64(n))
		}
		report.Classes = append(report.Classes, ClassSplit{Class: class, Assignment: a})

		s.logger.Info("class split",
			zap.String("class", class),
			zap.Int("train", len(a.Train)),
			zap.Int("val", len(a.Val)),
			zap.Int("test", len(a.Test)),
		)
	}

	s.logger.Info("split complete",
		zap.Int("classes", len(report.Classes)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("train", report.Totals[SplitTrain]),
		zap.Int("val", report.Totals[SplitVal]),
		zap.Int("test", report.Totals[SplitTest]),
	)
	return report, nil
}

func (s *Splitter) copyAssignment(class string, a Assignment) error {
	for _, split := range Splits {
		dstDir := filepath.Join(s.roots[split], class)
		if err := s.fs.MkdirAll(dstDir, 0755); err != nil {
			return fmt.Errorf("create %s dir for %s: %w", split, class, err)
		}

		for _, name := range a.Files(split) {
			dst := filepath.Join(dstDir, name)
			if isFile(s.fs, dst) {
				continue
			}
			if err := copyFile(s.fs, filepath.Join(s.root, class, name), dst); err != nil {
				return fmt.Errorf("copy %s/%s to %s: %w", class, name, split, err)
			}
		}
	}
	return nil
}
