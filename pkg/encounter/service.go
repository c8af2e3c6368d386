package encounter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

var errMissingNote = errors.New("missing note text")

// ValidationError marks malformed intake input, rejected synchronously
// before any unit of work exists.
type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type CreateInput struct {
	PatientRef  string              `json:"patient_ref,omitempty"`
	NoteText    string              `json:"note_text"`
	BilledCodes []models.BilledCode `json:"billed_codes,omitempty"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Encounter, error) {
	if strings.TrimSpace(input.NoteText) == "" {
		return nil, ValidationError{reason: errMissingNote}
	}

	enc := &Encounter{
		ID:          uuid.New(),
		PatientRef:  input.PatientRef,
		NoteText:    input.NoteText,
		BilledCodes: input.BilledCodes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(ctx, enc); err != nil {
		return nil, err
	}
	return enc, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.store.Get(ctx, id)
}
