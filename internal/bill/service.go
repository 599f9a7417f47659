package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parfinanciero/bill-tracker/internal/extract"
	"github.com/parfinanciero/bill-tracker/internal/recognizing"
)

// A scan or submission in flight runs to completion before a new one is
// permitted; there is no cancellation and no automatic retry.
var (
	ErrScanInFlight   = errors.New("a scan is already in progress")
	ErrSubmitInFlight = errors.New("a submission is already in progress")
)

// Gateway delivers a finished payload to the persistence backend and returns
// the created record's JSON body.
type Gateway interface {
	SubmitBill(ctx context.Context, payload Payload) (json.RawMessage, error)
}

// IDGenerator generates unique IDs for drafts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles draft transaction operations: scanning receipts into
// pre-filled drafts, manual entry, edits, and submission to the backend.
type Service struct {
	db          DB
	recognizer  recognizing.Recognizer
	storage     Storage
	gateway     Gateway
	idGenerator IDGenerator
	timeSource  TimeSource

	scanning   atomic.Bool
	submitting atomic.Bool
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, recognizer recognizing.Recognizer, storage Storage, gateway Gateway) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		gateway:     gateway,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer recognizing.Recognizer, storage Storage, gateway Gateway, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		gateway:     gateway,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length. Phone uploads tend to arrive with very long names.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ScanReceipt stores the uploaded image, runs OCR on it, extracts merchant,
// amount, and date from the recognized text, and persists a pre-filled draft.
// Recognition failure is not fatal: the draft comes back with empty fields
// for the user to fill in manually.
func (s *Service) ScanReceipt(filename string, data []byte, contentType string) (*Draft, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInFlight
	}
	defer s.scanning.Store(false)

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	var result extract.Result
	text, err := s.recognizer.RecognizeText(data, contentType)
	if err != nil {
		// No extraction possible; the draft stays empty and editable
		slog.Warn("Failed to recognize receipt text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
	} else {
		result = extract.Extract(text)
	}

	draft := &Draft{
		ID:          id,
		Company:     result.Merchant.Value,
		Amount:      result.Amount.Value,
		Date:        result.Date.Value,
		Category:    CategoryHome,
		Type:        TypeExpense,
		Filename:    savedPath,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveDraft(draft); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving draft to database: %w", err)
	}

	return draft, nil
}

// DraftFields carries the user-editable fields of a draft
type DraftFields struct {
	Company  string   `json:"company"`
	Amount   string   `json:"amount"`
	Date     string   `json:"date"`
	Category Category `json:"category"`
	Type     Type     `json:"type"`
}

// CreateDraft creates a draft from manual entry, without a receipt image
func (s *Service) CreateDraft(fields DraftFields) (*Draft, error) {
	now := s.timeSource.Now()

	draft := &Draft{
		ID:        s.idGenerator.Generate(),
		Company:   fields.Company,
		Amount:    fields.Amount,
		Date:      fields.Date,
		Category:  fields.Category,
		Type:      fields.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.SaveDraft(draft); err != nil {
		return nil, fmt.Errorf("saving draft to database: %w", err)
	}

	return draft, nil
}

// UpdateDraft replaces a draft's editable fields wholesale with the given
// values. The stored draft is swapped for a new value rather than mutated,
// so an edit can never leave a half-updated record behind.
func (s *Service) UpdateDraft(id string, fields DraftFields) (*Draft, error) {
	existing, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}

	draft := &Draft{
		ID:          existing.ID,
		Company:     fields.Company,
		Amount:      fields.Amount,
		Date:        fields.Date,
		Category:    fields.Category,
		Type:        fields.Type,
		Filename:    existing.Filename,
		ContentType: existing.ContentType,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   s.timeSource.Now(),
	}

	if err := s.db.SaveDraft(draft); err != nil {
		return nil, fmt.Errorf("saving draft to database: %w", err)
	}

	return draft, nil
}

// GetDraft retrieves a draft by ID
func (s *Service) GetDraft(id string) (*Draft, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}
	return draft, nil
}

// ListDrafts returns all drafts
func (s *Service) ListDrafts() ([]*Draft, error) {
	drafts, err := s.db.ListDrafts()
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// DeleteDraft removes a draft and its receipt image
func (s *Service) DeleteDraft(id string) error {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return fmt.Errorf("getting draft for deletion: %w", err)
	}

	if draft.Filename != "" {
		if err := s.storage.Delete(draft.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", draft.Filename, "error", err)
		}
	}

	if err := s.db.DeleteDraft(id); err != nil {
		return fmt.Errorf("deleting draft from database: %w", err)
	}
	return nil
}

// GetDraftFile retrieves the receipt image for a draft
func (s *Service) GetDraftFile(id string) ([]byte, string, error) {
	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting draft: %w", err)
	}

	if draft.Filename == "" {
		return nil, "", fmt.Errorf("draft %s has no receipt image", id)
	}

	data, err := s.storage.Get(draft.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting draft file: %w", err)
	}

	return data, draft.ContentType, nil
}

// SubmitDraft builds the submission payload from a draft and delivers it to
// the backend. Amount validation happens before any network call. On success
// the draft and its image are discarded; the backend becomes the system of
// record, and the created record's body is returned to the caller.
func (s *Service) SubmitDraft(ctx context.Context, id string, userID int) (json.RawMessage, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}
	defer s.submitting.Store(false)

	draft, err := s.db.GetDraft(id)
	if err != nil {
		return nil, fmt.Errorf("getting draft for submission: %w", err)
	}

	payload, err := BuildPayload(draft, userID)
	if err != nil {
		return nil, err
	}

	created, err := s.gateway.SubmitBill(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("submitting bill: %w", err)
	}

	// The draft is consumed exactly once
	if draft.Filename != "" {
		if err := s.storage.Delete(draft.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", draft.Filename, "error", err)
		}
	}
	if err := s.db.DeleteDraft(id); err != nil {
		slog.Warn("Failed to delete submitted draft", "id", id, "error", err)
	}

	return created, nil
}
