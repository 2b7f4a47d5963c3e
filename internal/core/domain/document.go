package domain

// Retrieval method provenance tags. Every document returned by the engine
// carries exactly one of these; blended metadata results get the
// "_boosted" suffix appended.
const (
	MethodSemantic       = "semantic"
	MethodBM25           = "bm25"
	MethodFilteredVector = "filtered_vector"
	MethodBM25Reranked   = "bm25_reranked"
	MethodComparison     = "comparison_filtered"
	BoostedMethodSuffix  = "_boosted"

	SourceBM25     = "bm25"
	SourceSemantic = "semantic"
)

// Payload is the stored document payload, validated at the storage boundary.
type Payload struct {
	SchemeName  string `json:"scheme_name"`
	Theme       string `json:"theme"`
	Ministry    string `json:"ministry,omitempty"`
	Text        string `json:"text"`
	OfficialURL string `json:"official_url,omitempty"`
}

// Document is a retrieval result. Re-scoring during fusion or boosting
// produces a new value; a Document is never mutated in place once returned.
type Document struct {
	ID               string         `json:"id"`
	Score            float64        `json:"score"`
	Payload          Payload        `json:"payload"`
	RetrievalMethod  string         `json:"retrieval_method"`
	RetrievalSources []string       `json:"retrieval_sources,omitempty"`
	Decomposition    *Decomposition `json:"decomposition,omitempty"`
}

// WithScore returns a copy with the score and, when non-empty, the method
// replaced.
func (d Document) WithScore(score float64, method string) Document {
	out := d
	out.Score = score
	if method != "" {
		out.RetrievalMethod = method
	}
	return out
}

// RetrievalMode selects the router dispatch path.
type RetrievalMode string

const (
	ModeFiltered RetrievalMode = "filtered"
	ModeHybrid   RetrievalMode = "hybrid"
)

// Decomposition is the per-query entity resolution outcome. The router
// stamps it on each returned document for traceability.
type Decomposition struct {
	Query           string        `json:"query"`
	DetectedSchemes []string      `json:"detected_schemes"`
	Mode            RetrievalMode `json:"mode"`
	Confidence      float64       `json:"confidence"`
	Filter          *Filter       `json:"filter,omitempty"`
}

// ThresholdDecision describes one adaptive-threshold computation. It is a
// value object recomputed per query and never persisted.
type ThresholdDecision struct {
	Threshold          float64 `json:"threshold"`
	Method             string  `json:"method"`
	Mean               float64 `json:"mean"`
	StdDev             float64 `json:"std_dev"`
	TopScore           float64 `json:"top_score"`
	DocsAboveThreshold int     `json:"docs_above_threshold"`
	TotalDocs          int     `json:"total_docs"`
	FilteredCount      int     `json:"filtered_count"`
	ReturnedCount      int     `json:"returned_count"`
}

// Degradation reports an expected reduced-capability retrieval path as a
// value rather than an error.
type Degradation struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

const DegradedBM25Unavailable = "bm25_unavailable"
