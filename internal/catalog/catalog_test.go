package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `[
  {"gloss": "book", "instances": [{"video_id": "001", "signer_id": 3, "split": "train"}, {"video_id": "002"}]},
  {"gloss": "drink", "instances": [{"video_id": "010"}, {"video_id": "011"}, {"video_id": "012"}]},
  {"gloss": "computer", "instances": [{"video_id": "020"}, {"video_id": "021"}]},
  {"gloss": "book", "instances": [{"video_id": "003"}, {"video_id": "004"}]}
]`

func writeCatalog(t *testing.T, body string) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/catalog.json", []byte(body), 0644))
	return fs
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), "/data/catalog.json")
	require.NoError(t, err)
	require.Len(t, c.Entries, 4)

	assert.Equal(t, "book", c.Entries[0].Gloss)
	assert.Equal(t, "001", c.Entries[0].Instances[0].VideoID)
	assert.Equal(t, 3, c.Entries[0].Instances[0].SignerID)
	assert.Equal(t, "train", c.Entries[0].Instances[0].Split)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{name: "missing file", body: "[]", path: "/data/other.json"},
		{name: "malformed json", body: `[{"gloss": "book",`, path: "/data/catalog.json"},
		{name: "empty catalog", body: "[]", path: "/data/catalog.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeCatalog(t, tt.body), tt.path)
			assert.Error(t, err)
		})
	}

	_, err := Load(writeCatalog(t, "[]"), "/data/catalog.json")
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestInstancesSpansRepeatedGlosses(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), "/data/catalog.json")
	require.NoError(t, err)

	var ids []string
	for _, inst := range c.Instances("book") {
		ids = append(ids, inst.VideoID)
	}
	assert.Equal(t, []string{"001", "002", "003", "004"}, ids)
	assert.Empty(t, c.Instances("missing"))
}

func TestFrequencies(t *testing.T) {
	c, err := Load(writeCatalog(t, sampleCatalog), "/data/catalog.json")
	require.NoError(t, err)

	ft := c.Frequencies()
	assert.Equal(t, map[string]int{"book": 4, "drink": 3, "computer": 2}, ft.Counts)
	assert.Equal(t, []string{"book", "drink", "computer"}, ft.Order)
	assert.Equal(t, []string{"book", "drink", "computer"}, ft.Ranked())
}

func TestRankedTieBreakIsFirstSeen(t *testing.T) {
	ft := &FrequencyTable{
		Counts: map[string]int{"zebra": 2, "apple": 2, "mango": 5, "kiwi": 2},
		Order:  []string{"zebra", "apple", "mango", "kiwi"},
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"mango", "zebra", "apple", "kiwi"}, ft.Ranked())
	}
}
