package processor

import "math/rand"

// Bucket groups mutually exclusive augmentations. At most one tag of a
// bucket is used per replicate.
type Bucket struct {
	Name string
	Tags []string
}

// DefaultBuckets are the augmentation categories replicates draw from
var DefaultBuckets = []Bucket{
	{Name: "mirror", Tags: []string{TagMirror}},
	{Name: "color", Tags: []string{TagBright, TagGray}},
	{Name: "speed", Tags: []string{TagFast, TagSlow}},
	{Name: "zoom", Tags: []string{TagZoom}},
}

// DefaultPicks is how many buckets each replicate combines
const DefaultPicks = 2

// Sampler draws augmentation tags: Picks distinct buckets uniformly without
// replacement, one tag uniformly inside each, in a random application order.
// All randomness comes from the injected generator.
type Sampler struct {
	buckets []Bucket
	picks   int
	rng     *rand.Rand
}

func NewSampler(buckets []Bucket, picks int, rng *rand.Rand) *Sampler {
	if picks > len(buckets) {
		picks = len(buckets)
	}
	if picks < 0 {
		picks = 0
	}
	return &Sampler{buckets: buckets, picks: picks, rng: rng}
}

// Sample returns the tags of one replicate in application order
func (s *Sampler) Sample() []string {
	order := s.rng.Perm(len(s.buckets))[:s.picks]

	tags := make([]string, 0, s.picks)
	for _, i := range order {
		b := s.buckets[i]
		if len(b.Tags) == 0 {
			continue
		}
		tags = append(tags, b.Tags[s.rng.Intn(len(b.Tags))])
	}

	s.rng.Shuffle(len(tags), func(i, j int) {
		tags[i], tags[j] = tags[j], tags[i]
	})
	return tags
}

// BucketOf returns the name of the bucket holding tag, or "" when none does
func BucketOf(buckets []Bucket, tag string) string {
	for _, b := range buckets {
		for _, t := range b.Tags {
			if t == tag {
				return b.Name
			}
		}
	}
	return ""
}
