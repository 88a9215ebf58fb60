package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/melody-ding/go-signprep/internal/types"
)

// ErrEmptyCatalog is returned when the catalog parses but holds no entries
var ErrEmptyCatalog = errors.New("catalog has no entries")

// Catalog is the loaded gloss to instances listing, in file order
type Catalog struct {
	Entries []types.Entry
}

// Load reads and parses a JSON catalog from fs
func Load(fs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var entries []types.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	return &Catalog{Entries: entries}, nil
}

// Instances returns every instance recorded for gloss, across all entries
// carrying that label, in catalog order
func (c *Catalog) Instances(gloss string) []types.Instance {
	var out []types.Instance
	for _, e := range c.Entries {
		if e.Gloss == gloss {
			out = append(out, e.Instances...)
		}
	}
	return out
}

// FrequencyTable maps each gloss to its total instance count. Order keeps
// the glosses in the order they first appear in the catalog.
type FrequencyTable struct {
	Counts map[string]int
	Order  []string
}

// Frequencies builds the frequency table of the catalog
func (c *Catalog) Frequencies() *FrequencyTable {
	ft := &FrequencyTable{Counts: make(map[string]int)}
	for _, e := range c.Entries {
		if _, seen := ft.Counts[e.Gloss]; !seen {
			ft.Order = append(ft.Order, e.Gloss)
		}
		ft.Counts[e.Gloss] += len(e.Instances)
	}
	return ft
}

// Ranked returns the glosses by descending count. Equal counts keep
// first-seen catalog order.
func (ft *FrequencyTable) Ranked() []string {
	ranked := make([]string, len(ft.Order))
	copy(ranked, ft.Order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ft.Counts[ranked[i]] > ft.Counts[ranked[j]]
	})
	return ranked
}
