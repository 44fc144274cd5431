package search

// Options configures a single retrieval: candidate count, scoring
// weights, token budget, and optional namespace filter. Weights live in
// this record rather than global state so callers can tune per request.
type Options struct {
	// MaxTokens is the token budget for the packed result. Required and
	// positive; DefaultMaxTokens is applied when the adapter sends none.
	MaxTokens int

	// TopKCandidates is the ANN beam after which metadata is fetched.
	TopKCandidates int

	// SimilarityWeight and RecencyWeight are non-negative and sum to 1.
	SimilarityWeight float32
	RecencyWeight    float32

	// Namespace, when set, keeps only chunks whose owning document has
	// metadata.namespace equal to it.
	Namespace string
}

// Defaults applied by Normalize.
const (
	DefaultMaxTokens      = 2000
	DefaultTopKCandidates = 50

	DefaultSimilarityWeight = 0.8
	DefaultRecencyWeight    = 0.2
)

// DefaultOptions returns the reference retrieval options.
func DefaultOptions() Options {
	return Options{
		MaxTokens:        DefaultMaxTokens,
		TopKCandidates:   DefaultTopKCandidates,
		SimilarityWeight: DefaultSimilarityWeight,
		RecencyWeight:    DefaultRecencyWeight,
	}
}

// Normalize fills missing fields with defaults.
func (o Options) Normalize() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.TopKCandidates <= 0 {
		o.TopKCandidates = DefaultTopKCandidates
	}
	if o.SimilarityWeight == 0 && o.RecencyWeight == 0 {
		o.SimilarityWeight = DefaultSimilarityWeight
		o.RecencyWeight = DefaultRecencyWeight
	}
	return o
}
