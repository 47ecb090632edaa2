// Package viewfilter derives the view-filter stage sequence for a clicked
// histogram category.
package viewfilter

import "github.com/prernadh/yolo-model-tuner-runner/internal/domain"

type Category string

const (
	// CategoryNone clears all filtering.
	CategoryNone     Category = ""
	CategoryTrain    Category = "train"
	CategoryVal      Category = "val"
	CategoryBoth     Category = "both"
	CategoryUntagged Category = "untagged"
)

type StageKind string

const (
	KindMatchTag    StageKind = "match_tag"
	KindExcludeTags StageKind = "exclude_tags"
)

// Stage is one unit of the view pipeline. Sequential stages compose as a
// logical AND: the downstream view engine applies each stage to the output of
// the previous one.
type Stage struct {
	Kind StageKind `json:"kind"`
	Tags []string  `json:"tags"`
}

func MatchTag(tag string) Stage {
	return Stage{Kind: KindMatchTag, Tags: []string{tag}}
}

func ExcludeTags(tags ...string) Stage {
	return Stage{Kind: KindExcludeTags, Tags: tags}
}

// Build returns the stage sequence for a category, fresh on every call.
//
// The single-tag categories match only their own tag and do not exclude the
// other one: a sample carrying both tags shows up under either single-tag
// filter even though the histogram reports it once, under "both". Keeping the
// filter broader than the display bucket is deliberate; it makes overlapping
// samples discoverable from either split.
//
// "both" is encoded as two sequential match stages rather than one combined
// predicate, relying on the pipeline's AND composition to produce the
// intersection.
func Build(category Category) []Stage {
	switch category {
	case CategoryTrain:
		return []Stage{MatchTag(domain.TagTrain)}
	case CategoryVal:
		return []Stage{MatchTag(domain.TagVal)}
	case CategoryBoth:
		return []Stage{MatchTag(domain.TagTrain), MatchTag(domain.TagVal)}
	case CategoryUntagged:
		return []Stage{ExcludeTags(domain.TagTrain, domain.TagVal)}
	default:
		return nil
	}
}

// Sink receives the active stage sequence. The dataset view itself is owned by
// the host; the panel only pushes descriptors at it.
type Sink interface {
	SetStages(stages []Stage)
}
