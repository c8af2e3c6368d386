package entityfilter

import (
	"testing"

	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

func init() {
	logger.Init("entityfilter-test")
}

func procedureEntity(text string, confidence float64) models.ExtractedEntity {
	return models.ExtractedEntity{Text: text, Category: models.CategoryProcedure, Confidence: confidence}
}

func TestFilterKeepsMatchingProcedures(t *testing.T) {
	reference := []models.ExtractedEntity{procedureEntity("appendectomy", 0.92)}
	raw := []models.ExtractedEntity{
		{Text: "appendectomy", Category: models.CategoryProcedure, Code: "80146002", Confidence: 0.05},
		{Text: "cardiac catheterization", Category: models.CategoryProcedure, Code: "41976001", Confidence: 0.9},
	}

	kept, stats := New().Apply(raw, reference, ProcedureRule(0.5, 0.5))
	if len(kept) != 1 {
		t.Fatalf("expected 1 kept entity, got %d", len(kept))
	}
	if kept[0].Code != "80146002" {
		t.Fatalf("expected the appendectomy code to survive, got %s", kept[0].Code)
	}
	if stats.Filtered != 1 {
		t.Fatalf("expected 1 filtered entity, got %d", stats.Filtered)
	}
}

// A candidate mapped at very low terminology confidence must still be kept
// when its text closely matches a confidently extracted procedure.
func TestFilterLowConfidenceRescue(t *testing.T) {
	reference := []models.ExtractedEntity{procedureEntity("laparoscopic appendectomy", 0.95)}
	raw := []models.ExtractedEntity{
		{Text: "appendectomy", Category: models.CategoryProcedure, Code: "80146002", Confidence: 0.05},
	}

	kept, _ := New().Apply(raw, reference, ProcedureRule(0.5, 0.5))
	if len(kept) != 1 {
		t.Fatalf("expected low-confidence candidate rescued by text match, got %d kept", len(kept))
	}
}

func TestFilterExcludesNegatedFindings(t *testing.T) {
	reference := []models.ExtractedEntity{
		{Text: "fever", Category: models.CategoryCondition, Confidence: 0.99,
			Traits: []string{models.TraitDiagnosis, models.TraitNegated}},
		{Text: "acute appendicitis", Category: models.CategoryCondition, Confidence: 0.85,
			Traits: []string{models.TraitDiagnosis}},
	}
	raw := []models.ExtractedEntity{
		{Text: "fever", Category: models.CategoryCondition, Code: "R50.9", Confidence: 0.9},
		{Text: "acute appendicitis", Category: models.CategoryCondition, Code: "K35.80", Confidence: 0.8},
	}

	kept, _ := New().Apply(raw, reference, DiagnosisRule(0.5, 0.6))
	if len(kept) != 1 {
		t.Fatalf("expected only the appendicitis entity, got %d kept", len(kept))
	}
	if kept[0].Code != "K35.80" {
		t.Fatalf("negated fever leaked through the filter: %v", kept)
	}
}

func TestFilterEmptyReferenceYieldsEmptyOutput(t *testing.T) {
	raw := []models.ExtractedEntity{procedureEntity("appendectomy", 0.9)}

	kept, stats := New().Apply(raw, nil, ProcedureRule(0.5, 0.5))
	if len(kept) != 0 {
		t.Fatalf("expected empty output with no reference entities, got %d", len(kept))
	}
	if stats.Filtered != 1 {
		t.Fatalf("expected all input counted as filtered, got %d", stats.Filtered)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	reference := []models.ExtractedEntity{procedureEntity("appendectomy", 0.9)}

	kept, stats := New().Apply(nil, reference, ProcedureRule(0.5, 0.5))
	if len(kept) != 0 || stats.Input != 0 {
		t.Fatalf("expected immediate empty result, got kept=%d input=%d", len(kept), stats.Input)
	}
}

func TestFilterIdempotent(t *testing.T) {
	reference := []models.ExtractedEntity{
		procedureEntity("appendectomy", 0.92),
		procedureEntity("colonoscopy", 0.88),
	}
	raw := []models.ExtractedEntity{
		{Text: "appendectomy", Category: models.CategoryProcedure, Code: "80146002", Confidence: 0.6},
		{Text: "colonoscopy", Category: models.CategoryProcedure, Code: "73761001", Confidence: 0.7},
		{Text: "knee arthroplasty", Category: models.CategoryProcedure, Code: "609588000", Confidence: 0.9},
	}

	rule := ProcedureRule(0.5, 0.5)
	f := New()
	once, _ := f.Apply(raw, reference, rule)
	twice, _ := f.Apply(once, reference, rule)

	if len(once) != len(twice) {
		t.Fatalf("filtering is not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Code != twice[i].Code {
			t.Fatalf("entity %d changed across runs: %s vs %s", i, once[i].Code, twice[i].Code)
		}
	}
}

func TestFilterDeduplicatesByCode(t *testing.T) {
	reference := []models.ExtractedEntity{procedureEntity("appendectomy", 0.92)}
	raw := []models.ExtractedEntity{
		{Text: "appendectomy", Category: models.CategoryProcedure, Code: "80146002", Confidence: 0.4},
		{Text: "appendectomy", Category: models.CategoryProcedure, Code: "80146002", Confidence: 0.8},
	}

	kept, _ := New().Apply(raw, reference, ProcedureRule(0.5, 0.5))
	if len(kept) != 1 {
		t.Fatalf("expected duplicates collapsed, got %d", len(kept))
	}
	if kept[0].Confidence != 0.8 {
		t.Fatalf("expected highest-confidence instance kept, got %f", kept[0].Confidence)
	}
}

func TestFilterFailsOpenOnScoringPanic(t *testing.T) {
	reference := []models.ExtractedEntity{procedureEntity("appendectomy", 0.92)}
	raw := []models.ExtractedEntity{
		procedureEntity("appendectomy", 0.9),
		procedureEntity("something else entirely", 0.2),
	}

	f := &Filter{score: func(a, b string) float64 { panic("scorer exploded") }}
	kept, stats := f.Apply(raw, reference, ProcedureRule(0.5, 0.5))

	if len(kept) != len(raw) {
		t.Fatalf("expected unfiltered input on scorer failure, got %d of %d", len(kept), len(raw))
	}
	if stats.Kept != len(raw) {
		t.Fatalf("expected stats to reflect fail-open, got %+v", stats)
	}
}

func TestSimilarityTiers(t *testing.T) {
	if s := Similarity("Appendectomy", "appendectomy"); s != 1.0 {
		t.Fatalf("expected exact match score 1.0, got %f", s)
	}
	if s := Similarity("laparoscopic appendectomy", "appendectomy"); s != 0.9 {
		t.Fatalf("expected substring score 0.9, got %f", s)
	}
	if s := Similarity("appendectomy", "appendictomy"); s < 0.8 {
		t.Fatalf("expected high edit-ratio for near miss, got %f", s)
	}
	if s := Similarity("appendectomy", ""); s != 0 {
		t.Fatalf("expected zero score for empty text, got %f", s)
	}
}
