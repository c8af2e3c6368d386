package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/models"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

// StageQueued is the stage label of a report that has not started yet.
const StageQueued = "queued"

// Report is one unit of work: a request to produce coding suggestions for a
// clinical note. Mutated only through the state machine methods, and only by
// the worker currently executing it.
type Report struct {
	ID           uuid.UUID             `json:"id"`
	EncounterID  uuid.UUID             `json:"encounter_id"`
	Status       string                `json:"status"`
	Percent      int                   `json:"percent"`
	Stage        string                `json:"stage"`
	RetryCount   int                   `json:"retry_count"`
	ErrorKind    string                `json:"error_kind,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Payload      *models.ReportPayload `json:"payload,omitempty"`
}

// ReportModel is the persistence shape of Report.
type ReportModel struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;column:id"`
	EncounterID  uuid.UUID      `gorm:"type:uuid;column:encounter_id;index"`
	Status       string         `gorm:"column:status;index"`
	Percent      int            `gorm:"column:percent"`
	Stage        string         `gorm:"column:stage"`
	RetryCount   int            `gorm:"column:retry_count"`
	ErrorKind    string         `gorm:"column:error_kind"`
	ErrorMessage string         `gorm:"column:error_message"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
	StartedAt    *time.Time     `gorm:"column:started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
}

func (ReportModel) TableName() string {
	return "coding_reports"
}

func (m *ReportModel) ToDomain() (*Report, error) {
	r := &Report{
		ID:           m.ID,
		EncounterID:  m.EncounterID,
		Status:       m.Status,
		Percent:      m.Percent,
		Stage:        m.Stage,
		RetryCount:   m.RetryCount,
		ErrorKind:    m.ErrorKind,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}
	if len(m.Payload) > 0 {
		var payload models.ReportPayload
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, err
		}
		r.Payload = &payload
	}
	return r, nil
}

func fromDomain(r *Report) (*ReportModel, error) {
	m := &ReportModel{
		ID:           r.ID,
		EncounterID:  r.EncounterID,
		Status:       r.Status,
		Percent:      r.Percent,
		Stage:        r.Stage,
		RetryCount:   r.RetryCount,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    time.Now().UTC(),
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, err
		}
		m.Payload = datatypes.JSON(raw)
	}
	return m, nil
}
