package encounter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// Encounter holds the de-identified note and the codes already billed for
// one visit. De-identification happens upstream; this subsystem never sees
// raw PHI.
type Encounter struct {
	ID          uuid.UUID           `json:"id"`
	PatientRef  string              `json:"patient_ref,omitempty"`
	NoteText    string              `json:"note_text"`
	BilledCodes []models.BilledCode `json:"billed_codes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type EncounterModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	PatientRef  string         `gorm:"column:patient_ref"`
	NoteText    string         `gorm:"column:note_text;type:text"`
	BilledCodes datatypes.JSON `gorm:"column:billed_codes"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (EncounterModel) TableName() string {
	return "encounters"
}

func (m *EncounterModel) ToDomain() (*Encounter, error) {
	enc := &Encounter{
		ID:         m.ID,
		PatientRef: m.PatientRef,
		NoteText:   m.NoteText,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.BilledCodes) > 0 {
		if err := json.Unmarshal(m.BilledCodes, &enc.BilledCodes); err != nil {
			return nil, err
		}
	}
	return enc, nil
}

func fromDomain(enc *Encounter) (*EncounterModel, error) {
	m := &EncounterModel{
		ID:         enc.ID,
		PatientRef: enc.PatientRef,
		NoteText:   enc.NoteText,
		CreatedAt:  enc.CreatedAt,
	}
	if len(enc.BilledCodes) > 0 {
		raw, err := json.Marshal(enc.BilledCodes)
		if err != nil {
			return nil, err
		}
		m.BilledCodes = datatypes.JSON(raw)
	}
	return m, nil
}
