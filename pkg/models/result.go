package models

import (
	"time"
)

// Severity classifies how hallucinated an answer is, based on the fused
// hallucination score.
type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityUnknown Severity = "unknown"
)

// EvaluationResult is the outcome of evaluating a single dataset item
// within a run. Created exactly once per item; immutable thereafter.
type EvaluationResult struct {
	// ID is the unique identifier for the result.
	ID string `json:"id"`

	// RunID references the owning evaluation run.
	RunID string `json:"run_id"`

	// DatasetItemID references the dataset item this result scores.
	DatasetItemID string `json:"dataset_item_id"`

	// RetrievedDocs is the ordered sequence returned by the pipeline.
	RetrievedDocs []RetrievedDoc `json:"retrieved_docs,omitempty"`

	// GeneratedAnswer is the answer produced by the pipeline.
	GeneratedAnswer string `json:"generated_answer,omitempty"`

	// RecallAtK maps K to Recall@K. Every configured K gets an entry;
	// a short retrieval simply scores over the documents it returned.
	RecallAtK map[int]float64 `json:"recall_at_k,omitempty"`

	// PrecisionAtK maps K to Precision@K. When fewer than K documents
	// came back the divisor is the actual count, not K.
	PrecisionAtK map[int]float64 `json:"precision_at_k,omitempty"`

	// MRR is the reciprocal rank of the first relevant document.
	MRR *float64 `json:"mrr,omitempty"`

	// MAP is the mean average precision over the retrieved sequence.
	MAP *float64 `json:"map,omitempty"`

	// HitRate is 1 when any relevant document appears in the top K for
	// the largest configured K, else 0.
	HitRate *float64 `json:"hit_rate,omitempty"`

	// Coverage is the fraction of ground truth retrieved anywhere in the
	// full sequence.
	Coverage *float64 `json:"coverage,omitempty"`

	// Faithfulness is the fraction of answer sentences supported by the
	// retrieved context. Nil when it could not be computed.
	Faithfulness *float64 `json:"faithfulness,omitempty"`

	// AnswerRelevance is the similarity between the answer and the query.
	AnswerRelevance *float64 `json:"answer_relevance,omitempty"`

	// ContextUtilization is the fraction of context sentences reflected
	// in the answer.
	ContextUtilization *float64 `json:"context_utilization,omitempty"`

	// SemanticSimilarity compares the answer against the ground truth
	// answer. Nil when the item has no ground truth answer.
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`

	// RougeL is the LCS-based F-measure against the ground truth answer.
	RougeL *float64 `json:"rouge_l,omitempty"`

	// F1 is the token-level overlap F1 against the ground truth answer.
	F1 *float64 `json:"f1,omitempty"`

	// HallucinationScore is the fused multi-signal score in [0,1].
	// Nil when every signal was unavailable.
	HallucinationScore *float64 `json:"hallucination_score,omitempty"`

	// HallucinationSeverity classifies the fused score.
	HallucinationSeverity Severity `json:"hallucination_severity,omitempty"`

	// HallucinatedSpans lists answer sentences flagged as unsupported,
	// deduplicated, in original answer order.
	HallucinatedSpans []string `json:"hallucinated_spans,omitempty"`

	// CitationCoverage is the fraction of answer sentences with support
	// in at least one retrieved passage.
	CitationCoverage *float64 `json:"citation_coverage,omitempty"`

	// SignalBreakdown details each hallucination signal that ran.
	SignalBreakdown []SignalScore `json:"signal_breakdown,omitempty"`

	// Error notes a per-item processing failure. Metrics are nil when
	// set; the run continues past the item.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the result was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// RetrievedDoc is a single document returned by the RAG pipeline, in rank
// order.
type RetrievedDoc struct {
	// ID is the document identifier used for ground truth matching.
	ID string `json:"id"`

	// Text is the passage content used for generation scoring.
	Text string `json:"text,omitempty"`

	// Score is the pipeline's own relevance score, when reported.
	Score float64 `json:"score,omitempty"`
}

// SignalScore records one hallucination signal's contribution.
type SignalScore struct {
	// Name identifies the signal (llm_judge, citation_check,
	// embedding_drift).
	Name string `json:"name"`

	// Score is the signal's raw score in [0,1], higher = more
	// hallucinated.
	Score float64 `json:"score"`

	// Weight is the effective (renormalized) weight applied to the
	// signal in the fused score.
	Weight float64 `json:"weight"`
}

// Float returns a pointer to v. Helper for the nullable metric fields.
func Float(v float64) *float64 {
	return &v
}
