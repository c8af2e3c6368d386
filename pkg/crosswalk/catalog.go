package crosswalk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/medcoder-ai/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one curated source→target mapping in the seed file.
type CatalogEntry struct {
	Target      string  `yaml:"target" json:"target"`
	Description string  `yaml:"description" json:"description"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
	Kind        string  `yaml:"kind" json:"kind"`
}

type Catalog struct {
	SourceSystem string                    `yaml:"source_system" json:"source_system"`
	TargetSystem string                    `yaml:"target_system" json:"target_system"`
	Mappings     map[string][]CatalogEntry `yaml:"mappings" json:"mappings"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Mappings) == 0 {
		return Catalog{}, fmt.Errorf("crosswalk catalog empty")
	}
	return cat, nil
}

// DefaultCatalog covers a handful of common procedures so local environments
// resolve something without a seed file.
func DefaultCatalog() Catalog {
	return Catalog{
		SourceSystem: "SNOMEDCT",
		TargetSystem: "CPT",
		Mappings: map[string][]CatalogEntry{
			"80146002": { // appendectomy
				{Target: "44950", Description: "Appendectomy", Confidence: 0.97, Kind: models.KindExact},
				{Target: "44970", Description: "Laparoscopic appendectomy", Confidence: 0.88, Kind: models.KindNarrower},
			},
			"73761001": { // colonoscopy
				{Target: "45378", Description: "Colonoscopy, diagnostic", Confidence: 0.95, Kind: models.KindExact},
			},
			"41976001": { // cardiac catheterization
				{Target: "93458", Description: "Left heart catheterization", Confidence: 0.82, Kind: models.KindBroader},
			},
			"609588000": { // total knee arthroplasty
				{Target: "27447", Description: "Total knee arthroplasty", Confidence: 0.96, Kind: models.KindExact},
			},
		},
	}
}
