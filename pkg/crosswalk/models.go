package crosswalk

import (
	"time"

	"github.com/medcoder-ai/platform/pkg/common/models"
)

// MappingModel is the durable crosswalk reference row. The table is
// append/read-only from this subsystem's perspective.
type MappingModel struct {
	ID                uint      `gorm:"primaryKey;autoIncrement;column:id"`
	SourceCode        string    `gorm:"column:source_code;index"`
	SourceSystem      string    `gorm:"column:source_system"`
	TargetCode        string    `gorm:"column:target_code"`
	TargetSystem      string    `gorm:"column:target_system"`
	TargetDescription string    `gorm:"column:target_description"`
	Confidence        float64   `gorm:"column:confidence"`
	Kind              string    `gorm:"column:kind"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (MappingModel) TableName() string {
	return "crosswalk_mappings"
}

func (m *MappingModel) ToDomain() models.CrosswalkMapping {
	return models.CrosswalkMapping{
		SourceCode:        m.SourceCode,
		SourceSystem:      m.SourceSystem,
		TargetCode:        m.TargetCode,
		TargetSystem:      m.TargetSystem,
		TargetDescription: m.TargetDescription,
		Confidence:        m.Confidence,
		Kind:              m.Kind,
	}
}

// LookupCountModel tracks how often each source code is requested; warm-up
// reads the top rows at startup.
type LookupCountModel struct {
	SourceCode string    `gorm:"primaryKey;column:source_code"`
	Count      int64     `gorm:"column:count"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (LookupCountModel) TableName() string {
	return "crosswalk_lookup_counts"
}

// kindRank orders mapping kinds for confidence tie-breaking.
func kindRank(kind string) int {
	switch kind {
	case models.KindExact:
		return 0
	case models.KindBroader:
		return 1
	case models.KindNarrower:
		return 2
	case models.KindApproximate:
		return 3
	default:
		return 4
	}
}
