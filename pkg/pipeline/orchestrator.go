package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
	"github.com/medcoder-ai/platform/pkg/encounter"
	"github.com/medcoder-ai/platform/pkg/entityfilter"
	"github.com/medcoder-ai/platform/pkg/report"
)

// Terminology systems the coded-term extraction is asked for.
const (
	ProcedureCodeSystem = "SNOMEDCT"
	DiagnosisCodeSystem = "ICD10CM"
)

// Extractor is the external clinical entity-extraction service.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]models.ExtractedEntity, error)
	ExtractCodedTerms(ctx context.Context, text, codeSystem string) ([]models.ExtractedEntity, error)
}

// Suggester is the external generative model: code suggestion (fatal on
// failure) and note refinement (degradable).
type Suggester interface {
	SuggestCodes(ctx context.Context, text string, billed []models.BilledCode, procedures, diagnoses []models.ExtractedEntity, candidates map[string][]models.CrosswalkMapping) (*models.SuggestionSet, error)
	RefineText(ctx context.Context, text string) (string, error)
}

// CrosswalkResolver resolves billing-code candidates; lookups never fail
// into the pipeline, they produce empty results.
type CrosswalkResolver interface {
	GetBatch(ctx context.Context, codes []string, minConfidence float64) map[string][]models.CrosswalkMapping
}

// EncounterLoader loads the unit of work's input.
type EncounterLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*encounter.Encounter, error)
}

// Options carries the independently tunable filter thresholds.
type Options struct {
	ReferenceConfidenceFloor float64
	ProcedureMatchThreshold  float64
	DiagnosisMatchThreshold  float64
	CrosswalkMinConfidence   float64
}

// Orchestrator sequences the coding pipeline for one report. It is
// stateless across units; a single worker drives one report at a time, which
// is what makes the report's single-writer invariant hold by construction.
type Orchestrator struct {
	reports    *report.Service
	encounters EncounterLoader
	extractor  Extractor
	suggester  Suggester
	crosswalk  CrosswalkResolver
	filter     *entityfilter.Filter
	opts       Options
}

func NewOrchestrator(reports *report.Service, encounters EncounterLoader, extractor Extractor, suggester Suggester, crosswalk CrosswalkResolver, opts Options) *Orchestrator {
	return &Orchestrator{
		reports:    reports,
		encounters: encounters,
		extractor:  extractor,
		suggester:  suggester,
		crosswalk:  crosswalk,
		filter:     entityfilter.New(),
		opts:       opts,
	}
}

// Execute runs the full pipeline for one report. Degraded-stage failures are
// absorbed with empty or unfiltered intermediate results; only a fatal error
// (the suggestion call, or a panic) propagates to the caller. A report that
// is already terminal is a no-op, which makes redelivery idempotent.
func (o *Orchestrator) Execute(ctx context.Context, rep *report.Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithFields(map[string]interface{}{
				"report_id": rep.ID,
				"panic":     r,
			}).Error("pipeline panicked")
			err = fatal("panic", fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	if rep.Terminal() {
		logger.Log.WithField("report_id", rep.ID).Info("report already terminal, skipping")
		return nil
	}

	if rep.Status == report.StatusPending {
		if err := o.reports.Start(ctx, rep); err != nil {
			return fatal("start", err)
		}
	}

	var degraded []string

	// Stage 1: load the de-identified encounter.
	enc, err := o.encounters.Get(ctx, rep.EncounterID)
	if err != nil {
		return fatal("loading encounter", err)
	}
	o.advance(ctx, rep, 10, "loading encounter")

	// Stage 2: optional relevance refinement; continue with the original
	// text on failure.
	text := enc.NoteText
	if refined, err := o.suggester.RefineText(ctx, text); err != nil {
		degraded = append(degraded, "refining note")
		logger.Log.WithError(err).WithField("report_id", rep.ID).Warn("refinement degraded, using original text")
	} else {
		text = refined
	}
	o.advance(ctx, rep, 20, "refining note")

	// Stage 3: entity extraction; empty entity set on failure.
	entities, err := o.extractor.ExtractEntities(ctx, text)
	if err != nil {
		degraded = append(degraded, "extracting entities")
		logger.Log.WithError(err).WithField("report_id", rep.ID).Warn("entity extraction degraded")
		entities = nil
	}
	o.advance(ctx, rep, 30, "extracting entities")

	procCandidates, err := o.extractor.ExtractCodedTerms(ctx, text, ProcedureCodeSystem)
	if err != nil {
		degraded = append(degraded, "extracting procedure terms")
		logger.Log.WithError(err).WithField("report_id", rep.ID).Warn("procedure term extraction degraded")
		procCandidates = nil
	}
	diagCandidates, err := o.extractor.ExtractCodedTerms(ctx, text, DiagnosisCodeSystem)
	if err != nil {
		degraded = append(degraded, "extracting diagnosis terms")
		logger.Log.WithError(err).WithField("report_id", rep.ID).Warn("diagnosis term extraction degraded")
		diagCandidates = nil
	}
	o.advance(ctx, rep, 40, "extracting coded terms")

	// Stages 4: confidence-gated filtering, per category.
	keptProcedures, procStats := o.filter.Apply(procCandidates, entities,
		entityfilter.ProcedureRule(o.opts.ReferenceConfidenceFloor, o.opts.ProcedureMatchThreshold))
	o.advance(ctx, rep, 50, "filtering procedures")

	keptDiagnoses, diagStats := o.filter.Apply(diagCandidates, entities,
		entityfilter.DiagnosisRule(o.opts.ReferenceConfidenceFloor, o.opts.DiagnosisMatchThreshold))
	o.advance(ctx, rep, 60, "filtering diagnoses")

	logger.Log.WithFields(map[string]interface{}{
		"report_id":       rep.ID,
		"procedures_in":   procStats.Input,
		"procedures_kept": procStats.Kept,
		"diagnoses_in":    diagStats.Input,
		"diagnoses_kept":  diagStats.Kept,
	}).Info("entity filtering complete")

	// Stage 5: crosswalk resolution for kept procedures.
	candidates := o.crosswalk.GetBatch(ctx, sourceCodes(keptProcedures), o.opts.CrosswalkMinConfidence)
	o.advance(ctx, rep, 70, "resolving crosswalk")

	// Stage 6: generative suggestion. The one call the report cannot do
	// without.
	set, err := o.suggester.SuggestCodes(ctx, text, enc.BilledCodes, keptProcedures, keptDiagnoses, candidates)
	if err != nil {
		return fatal("generating suggestions", err)
	}
	o.advance(ctx, rep, 80, "generating suggestions")

	// Stage 7: financial delta and payload assembly.
	delta := computeDelta(enc.BilledCodes, set.Suggestions)
	o.advance(ctx, rep, 90, "computing financial delta")

	payload := &models.ReportPayload{
		SuggestedCodes:      set.Suggestions,
		KeptProcedures:      keptProcedures,
		KeptDiagnoses:       keptDiagnoses,
		CrosswalkCandidates: candidates,
		Delta:               delta,
		DegradedStages:      degraded,
	}
	o.advance(ctx, rep, 95, "finalizing report")

	// Stage 8: terminal transition.
	if err := o.reports.Complete(ctx, rep, payload); err != nil {
		return fatal("finalizing report", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"report_id":   rep.ID,
		"suggestions": len(set.Suggestions),
		"incremental": delta.IncrementalRevenue,
		"degraded":    len(degraded),
	}).Info("coding report complete")

	return nil
}

// advance emits a progress milestone. A retry re-runs earlier stages with
// the percent already past them; that regression is expected and skipped so
// the unit's progress stays monotonic.
func (o *Orchestrator) advance(ctx context.Context, rep *report.Report, percent int, stage string) {
	if err := o.reports.Advance(ctx, rep, percent, stage); err != nil {
		if errors.Is(err, report.ErrProgressRegress) {
			return
		}
		logger.Log.WithError(err).WithField("report_id", rep.ID).Warn("failed to record progress")
	}
}

func sourceCodes(entities []models.ExtractedEntity) []string {
	var codes []string
	for _, e := range entities {
		if code := strings.TrimSpace(e.Code); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// computeDelta compares the estimated reimbursement of suggested codes not
// already on the claim against the billed total.
func computeDelta(billed []models.BilledCode, suggestions []models.CodeSuggestion) models.FinancialDelta {
	billedCodes := make(map[string]struct{}, len(billed))
	delta := models.FinancialDelta{}
	for _, b := range billed {
		billedCodes[b.Code] = struct{}{}
		delta.BilledTotal += b.Amount
	}

	delta.SuggestedTotal = delta.BilledTotal
	for _, s := range suggestions {
		if _, already := billedCodes[s.Code]; already {
			continue
		}
		delta.SuggestedTotal += s.EstimatedFee
	}
	delta.IncrementalRevenue = delta.SuggestedTotal - delta.BilledTotal
	return delta
}
