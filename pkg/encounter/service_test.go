package encounter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/medcoder-ai/platform/pkg/common/logger"
	"github.com/medcoder-ai/platform/pkg/common/models"
)

func init() {
	logger.Init("encounter-test")
}

type memStore struct {
	encounters map[uuid.UUID]*Encounter
}

func newMemStore() *memStore {
	return &memStore{encounters: make(map[uuid.UUID]*Encounter)}
}

func (s *memStore) Create(ctx context.Context, enc *Encounter) error {
	s.encounters[enc.ID] = enc
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, ok := s.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return enc, nil
}

func TestCreateRejectsEmptyNote(t *testing.T) {
	svc := NewService(newMemStore())

	_, err := svc.Create(context.Background(), CreateInput{NoteText: "   "})
	if err == nil {
		t.Fatal("Create() expected error for blank note")
	}
	if !IsValidationError(err) {
		t.Fatalf("error %v should be a validation error", err)
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	svc := NewService(newMemStore())

	enc, err := svc.Create(context.Background(), CreateInput{
		PatientRef: "pat-001",
		NoteText:   "Patient underwent laparoscopic appendectomy.",
		BilledCodes: []models.BilledCode{
			{Code: "99213", Amount: 75},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if enc.ID == uuid.Nil {
		t.Fatal("Create() did not assign an id")
	}

	got, err := svc.Get(context.Background(), enc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.NoteText != enc.NoteText {
		t.Fatalf("note text = %q, want %q", got.NoteText, enc.NoteText)
	}
	if len(got.BilledCodes) != 1 || got.BilledCodes[0].Code != "99213" {
		t.Fatalf("billed codes = %+v", got.BilledCodes)
	}
}

func TestGetUnknownEncounter(t *testing.T) {
	svc := NewService(newMemStore())

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}
