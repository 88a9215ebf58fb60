package dataset

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DescriptorFile is written at the root of the materialized corpus
const DescriptorFile = "data.yaml"

// Descriptor points a training job at the split roots and names the classes
type Descriptor struct {
	Train      string   `yaml:"train"`
	Val        string   `yaml:"val"`
	Test       string   `yaml:"test"`
	NamesCount int      `yaml:"nc"`
	Names      []string `yaml:"names"`
}

func NewDescriptor(roots map[Split]string, names []string) Descriptor {
	return Descriptor{
		Train:      roots[SplitTrain],
		Val:        roots[SplitVal],
		Test:       roots[SplitTest],
		NamesCount: len(names),
		Names:      names,
	}
}

// ClassIndex returns the position of name among the classes, or -1
func (d Descriptor) ClassIndex(name string) int {
	for i, n := range d.Names {
		if n == name {
			return i
		}
	}
	return -1
}

func SaveDescriptor(fs afero.Fs, d Descriptor, dir string) error {
	b, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	return afero.WriteFile(fs, filepath.Join(dir, DescriptorFile), b, 0644)
}

func LoadDescriptor(fs afero.Fs, dir string) (*Descriptor, error) {
	b, err := afero.ReadFile(fs, filepath.Join(dir, DescriptorFile))
	if err != nil {
		return nil, err
	}

	d := new(Descriptor)
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return d, nil
}
