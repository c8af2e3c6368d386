package entityfilter

import (
	"strings"

	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

// Rule describes one filtering pipeline. The confidence floor applies to the
// reference entities (stage 1); the match threshold applies to raw
// candidates scored against that reference set (stage 2). The two filtering
// pipelines carry independently tuned thresholds because their upstream
// confidence distributions differ.
type Rule struct {
	Category        string
	RequiredTraits  []string // reference entity must carry at least one
	ExcludedTraits  []string // reference entity must carry none
	ConfidenceFloor float64
	MinMatchScore   float64
}

// ProcedureRule filters candidate procedure codes against confidently
// extracted procedure entities.
func ProcedureRule(floor, minScore float64) Rule {
	return Rule{
		Category:        models.CategoryProcedure,
		ConfidenceFloor: floor,
		MinMatchScore:   minScore,
	}
}

// DiagnosisRule filters candidate diagnosis codes. Reference entities must
// be diagnoses or symptoms, and never negated findings: "denies fever" must
// not produce a kept entity for "fever".
func DiagnosisRule(floor, minScore float64) Rule {
	return Rule{
		Category:        models.CategoryCondition,
		RequiredTraits:  []string{models.TraitDiagnosis, models.TraitSymptom},
		ExcludedTraits:  []string{models.TraitNegated},
		ConfidenceFloor: floor,
		MinMatchScore:   minScore,
	}
}

type Stats struct {
	Input    int `json:"input"`
	Kept     int `json:"kept"`
	Filtered int `json:"filtered"`
}

type Filter struct {
	score func(a, b string) float64
}

func New() *Filter {
	return &Filter{score: Similarity}
}

// Apply runs the two-stage funnel: select trusted reference entities, then
// keep every raw candidate whose best text match against the reference set
// meets the rule's threshold. Output is deduplicated by normalized code,
// keeping the instance with the highest original confidence.
//
// Apply fails open: if scoring panics, the raw input is returned unfiltered
// so a filtering defect never blocks the pipeline.
func (f *Filter) Apply(raw, reference []models.ExtractedEntity, rule Rule) (kept []models.ExtractedEntity, stats Stats) {
	stats = Stats{Input: len(raw)}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("panic", r).Error("entity filter failure, failing open")
			kept = raw
			stats = Stats{Input: len(raw), Kept: len(raw)}
		}
	}()

	if len(raw) == 0 {
		return nil, stats
	}

	trusted := f.selectReference(reference, rule)
	if len(trusted) == 0 {
		logger.Log.WithFields(map[string]interface{}{
			"category": rule.Category,
			"input":    len(raw),
		}).Info("no reference entities passed the confidence gate")
		stats.Filtered = len(raw)
		return nil, stats
	}

	for _, candidate := range raw {
		if f.bestMatch(candidate, trusted) >= rule.MinMatchScore {
			kept = append(kept, candidate)
		}
	}

	kept = dedupeByCode(kept)
	stats.Kept = len(kept)
	stats.Filtered = stats.Input - stats.Kept

	logger.Log.WithFields(map[string]interface{}{
		"category": rule.Category,
		"input":    stats.Input,
		"kept":     stats.Kept,
		"filtered": stats.Filtered,
	}).Debug("entity filter applied")

	return kept, stats
}

func (f *Filter) selectReference(reference []models.ExtractedEntity, rule Rule) []models.ExtractedEntity {
	var trusted []models.ExtractedEntity
	for _, ref := range reference {
		if rule.Category != "" && ref.Category != rule.Category {
			continue
		}
		if ref.Confidence <= rule.ConfidenceFloor {
			continue
		}
		if len(rule.RequiredTraits) > 0 && !hasAnyTrait(ref, rule.RequiredTraits) {
			continue
		}
		if hasAnyTrait(ref, rule.ExcludedTraits) {
			continue
		}
		trusted = append(trusted, ref)
	}
	return trusted
}

func (f *Filter) bestMatch(candidate models.ExtractedEntity, trusted []models.ExtractedEntity) float64 {
	best := 0.0
	for _, ref := range trusted {
		if score := f.score(candidate.Text, ref.Text); score > best {
			best = score
		}
	}
	return best
}

func hasAnyTrait(e models.ExtractedEntity, traits []string) bool {
	for _, t := range traits {
		if e.HasTrait(t) {
			return true
		}
	}
	return false
}

func dedupeByCode(entities []models.ExtractedEntity) []models.ExtractedEntity {
	if len(entities) == 0 {
		return entities
	}

	index := make(map[string]int, len(entities))
	var out []models.ExtractedEntity
	for _, e := range entities {
		key := strings.ToUpper(strings.TrimSpace(e.Code))
		if key == "" {
			key = normalize(e.Text)
		}
		if pos, ok := index[key]; ok {
			if e.Confidence > out[pos].Confidence {
				out[pos] = e
			}
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out
}
