package domain

import "time"

// WorkflowState is the request-scoped state carried through the refinement
// pipeline. It is mutated only by workflow transitions and discarded when
// the request completes.
type WorkflowState struct {
	Query           string
	Intent          Intent
	RetrievedDocs   []Document
	Answer          string
	NeedsReflection bool
	NeedsCorrection bool
	ReflectionCount int
	CorrectionCount int
	Degradation     Degradation
}

// WorkflowResult is the public outcome of one refinement run.
type WorkflowResult struct {
	Answer          string     `json:"answer"`
	Intent          Intent     `json:"intent"`
	RetrievedDocs   []Document `json:"retrieved_docs"`
	NeedsReflection bool       `json:"needs_reflection"`
	NeedsCorrection bool       `json:"needs_correction"`
	ReflectionCount int        `json:"reflection_count"`
	CorrectionCount int        `json:"correction_count"`
}

// QueryRecord is the audit-log row persisted after a workflow run.
type QueryRecord struct {
	ID              string
	Query           string
	Intent          Intent
	Mode            RetrievalMode
	DetectedSchemes []string
	DocCount        int
	ReflectionCount int
	CorrectionCount int
	DegradedReason  string
	CreatedAt       time.Time
}
