package types

// Entry is one gloss of the catalog with the instances recorded for it
type Entry struct {
	Gloss     string     `json:"gloss"`
	Instances []Instance `json:"instances"`
}

// Instance references a single source video of a gloss
type Instance struct {
	VideoID     string `json:"video_id"`
	InstanceID  int    `json:"instance_id,omitempty"`
	SignerID    int    `json:"signer_id,omitempty"`
	Source      string `json:"source,omitempty"`
	Split       string `json:"split,omitempty"`
	URL         string `json:"url,omitempty"`
	FrameStart  int    `json:"frame_start,omitempty"`
	FrameEnd    int    `json:"frame_end,omitempty"`
	FPS         int    `json:"fps,omitempty"`
	BBox        []int  `json:"bbox,omitempty"`
	VariationID int    `json:"variation_id,omitempty"`
}
