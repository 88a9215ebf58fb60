package types

// ClipMetadata describes one encoded augmentation replicate
type ClipMetadata struct {
	Key        string   `json:"key"`
	Source     string   `json:"source"`
	Path       string   `json:"path"`
	Replicate  int      `json:"replicate"`
	Transforms []string `json:"transforms"`
	FPS        float64  `json:"fps"`
	FrameCount int      `json:"frame_count"`
	Size       []int    `json:"size"`
}
