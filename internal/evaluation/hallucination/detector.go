package hallucination

import (
	"context"
	"log/slog"

	"github.com/evraghq/evrag/pkg/models"
)

// Default fusion weights. Renormalized over whichever signals ran, so
// the configured ratios are preserved in degraded mode.
const (
	DefaultJudgeWeight    = 0.40
	DefaultCitationWeight = 0.35
	DefaultDriftWeight    = 0.25
)

// Severity bands over the fused score.
const (
	severityMediumFloor = 0.3
	severityHighFloor   = 0.6
)

// Assessment is the detector's verdict for one answer.
type Assessment struct {
	// Score is the fused hallucination score in [0,1]. Nil iff every
	// signal was unavailable.
	Score *float64

	// Severity classifies the fused score; unknown when Score is nil.
	Severity models.Severity

	// Spans lists unsupported answer sentences, deduplicated, in
	// original order. Taken from the judge when it ran, else from the
	// citation check.
	Spans []string

	// CitationCoverage is 1 minus the citation signal's score, when the
	// citation signal ran.
	CitationCoverage *float64

	// Breakdown details each signal that ran with its effective weight.
	Breakdown []models.SignalScore
}

type weightedSignal struct {
	signal Signal
	weight float64
}

// Detector fuses a fixed set of weighted signals. Adding a signal is a
// single Register call; the reducer renormalizes automatically.
type Detector struct {
	signals []weightedSignal
	logger  *slog.Logger
}

// NewDetector creates an empty detector. Use Register to attach signals
// or NewDefaultDetector for the standard three-signal setup.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default().With("component", "hallucination-detector")
	}
	return &Detector{logger: logger}
}

// NewDefaultDetector wires the standard judge/citation/drift signals
// with the default 0.40/0.35/0.25 weights.
func NewDefaultDetector(judgeSig, citationSig, driftSig Signal, logger *slog.Logger) *Detector {
	d := NewDetector(logger)
	d.Register(judgeSig, DefaultJudgeWeight)
	d.Register(citationSig, DefaultCitationWeight)
	d.Register(driftSig, DefaultDriftWeight)
	return d
}

// Register attaches a signal with its fusion weight. Nil signals and
// non-positive weights are ignored.
func (d *Detector) Register(s Signal, weight float64) {
	if s == nil || weight <= 0 {
		return
	}
	d.signals = append(d.signals, weightedSignal{signal: s, weight: weight})
}

// Detect runs every registered signal and fuses the available scores.
// It never fails the item: signal errors degrade the result and total
// unavailability yields a nil score with unknown severity.
func (d *Detector) Detect(ctx context.Context, answer string, contexts []string) *Assessment {
	type ran struct {
		weightedSignal
		finding *Finding
	}

	var available []ran
	totalWeight := 0.0
	for _, ws := range d.signals {
		finding, err := ws.signal.Produce(ctx, answer, contexts)
		if err != nil {
			d.logger.Warn("hallucination signal unavailable",
				"signal", ws.signal.Name(),
				"error", err,
			)
			continue
		}
		available = append(available, ran{weightedSignal: ws, finding: finding})
		totalWeight += ws.weight
	}

	if len(available) == 0 || totalWeight == 0 {
		return &Assessment{Severity: models.SeverityUnknown}
	}

	fused := 0.0
	assessment := &Assessment{}
	var judgeRan bool
	var judgeFlags, citationFlags []string
	for _, r := range available {
		effective := r.weight / totalWeight
		fused += effective * r.finding.Score

		assessment.Breakdown = append(assessment.Breakdown, models.SignalScore{
			Name:   r.signal.Name(),
			Score:  r.finding.Score,
			Weight: effective,
		})

		switch r.signal.Name() {
		case SignalLLMJudge:
			judgeRan = true
			judgeFlags = r.finding.Flagged
		case SignalCitationCheck:
			citationFlags = r.finding.Flagged
			coverage := 1.0 - r.finding.Score
			assessment.CitationCoverage = &coverage
		}
	}

	assessment.Score = &fused
	assessment.Severity = classify(fused)
	// Spans come from the judge when it ran, else from the citation
	// check.
	if judgeRan {
		assessment.Spans = dedupeOrdered(judgeFlags)
	} else {
		assessment.Spans = dedupeOrdered(citationFlags)
	}
	return assessment
}

func classify(score float64) models.Severity {
	switch {
	case score < severityMediumFloor:
		return models.SeverityLow
	case score < severityHighFloor:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}

func dedupeOrdered(spans []string) []string {
	seen := make(map[string]struct{}, len(spans))
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
