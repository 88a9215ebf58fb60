package types

// Job is one augmentation unit: a source video, the directory its
// replicates go to and how many replicates to produce
type Job struct {
	Source     string
	OutputDir  string
	Replicates int
}
