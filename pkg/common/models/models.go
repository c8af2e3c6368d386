package models

import "time"

// Entity categories produced by the extraction service.
const (
	CategoryProcedure  = "procedure"
	CategoryCondition  = "condition"
	CategoryMedication = "medication"
)

// Entity traits attached by the extraction service.
const (
	TraitNegated   = "negated"
	TraitDiagnosis = "diagnosis"
	TraitSymptom   = "symptom"
	TraitSign      = "sign"
)

// ExtractedEntity is one clinical entity detected in a de-identified note.
// Entities arrive from the extraction service and are treated as read-only.
type ExtractedEntity struct {
	Text        string   `json:"text"`
	Category    string   `json:"category"`
	Traits      []string `json:"traits,omitempty"`
	Confidence  float64  `json:"confidence"`
	BeginOffset int      `json:"begin_offset"`
	EndOffset   int      `json:"end_offset"`
	Code        string   `json:"code,omitempty"`
	CodeSystem  string   `json:"code_system,omitempty"`
}

func (e ExtractedEntity) HasTrait(trait string) bool {
	for _, t := range e.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// Crosswalk mapping kinds, ordered by preference.
const (
	KindExact       = "EXACT"
	KindBroader     = "BROADER"
	KindNarrower    = "NARROWER"
	KindApproximate = "APPROXIMATE"
)

// CrosswalkMapping relates a procedure-terminology code to one billing code.
type CrosswalkMapping struct {
	SourceCode        string  `json:"source_code"`
	SourceSystem      string  `json:"source_system"`
	TargetCode        string  `json:"target_code"`
	TargetSystem      string  `json:"target_system"`
	TargetDescription string  `json:"target_description"`
	Confidence        float64 `json:"confidence"`
	Kind              string  `json:"kind"`
}

// BilledCode is a code already on the encounter's claim.
type BilledCode struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

// CodeSuggestion is one billing code proposed by the generative service.
type CodeSuggestion struct {
	Code         string  `json:"code"`
	Description  string  `json:"description,omitempty"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale,omitempty"`
	EstimatedFee float64 `json:"estimated_fee"`
}

// SuggestionSet is the full response of the generative suggestion call.
type SuggestionSet struct {
	Suggestions  []CodeSuggestion `json:"suggestions"`
	ModelVersion string           `json:"model_version,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// FinancialDelta compares suggested reimbursement against billed amounts.
type FinancialDelta struct {
	BilledTotal        float64 `json:"billed_total"`
	SuggestedTotal     float64 `json:"suggested_total"`
	IncrementalRevenue float64 `json:"incremental_revenue"`
}

// ReportPayload is the immutable output of a completed coding run.
type ReportPayload struct {
	SuggestedCodes      []CodeSuggestion              `json:"suggested_codes"`
	KeptProcedures      []ExtractedEntity             `json:"kept_procedures"`
	KeptDiagnoses       []ExtractedEntity             `json:"kept_diagnoses"`
	CrosswalkCandidates map[string][]CrosswalkMapping `json:"crosswalk_candidates,omitempty"`
	Delta               FinancialDelta                `json:"financial_delta"`
	DegradedStages      []string                      `json:"degraded_stages,omitempty"`
}
