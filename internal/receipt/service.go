package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receiptly/internal/analytics"
	"github.com/zombor/receiptly/internal/interpret"
	"github.com/zombor/receiptly/internal/summary"
)

var (
	// ErrNotFound means no receipt or file exists with the given ID or path.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDraft means a draft cannot be saved as submitted.
	ErrInvalidDraft = errors.New("invalid receipt")
)

// TextReader extracts text from an uploaded document
type TextReader interface {
	ReadText(ctx context.Context, data []byte, contentType string) (string, error)
}

// Interpreter turns OCR text into structured receipt data
type Interpreter interface {
	Interpret(ctx context.Context, ocrText string) (*interpret.InterpretedReceipt, error)
}

// Summarizer writes narrative summaries
type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) (string, error)
}

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	history     History
	reader      TextReader
	storage     Storage
	interpreter Interpreter
	summarizer  Summarizer
	idGenerator IDGenerator
	timeSource  TimeSource

	// mu serializes load-all/replace-all cycles
	mu sync.Mutex
}

// NewService creates a new Service with UUIDs and the wall clock
func NewService(history History, reader TextReader, storage Storage, interpreter Interpreter, summarizer Summarizer) *Service {
	return NewServiceWithDeps(history, reader, storage, interpreter, summarizer, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(history History, reader TextReader, storage Storage, interpreter Interpreter, summarizer Summarizer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		history:     history,
		reader:      reader,
		storage:     storage,
		interpreter: interpreter,
		summarizer:  summarizer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Scan stores an upload and reads its text
func (s *Service) Scan(ctx context.Context, filename string, data []byte, contentType string) (*ScanResult, error) {
	storedPath := UploadPath(filename, s.timeSource.Now(), s.idGenerator.Generate())

	publicURL, err := s.storage.Save(ctx, storedPath, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.reader.ReadText(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to read receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(ctx, storedPath); delErr != nil {
			slog.Warn("Failed to clean up upload", "path", storedPath, "error", delErr)
		}
		return nil, fmt.Errorf("reading receipt: %w", err)
	}

	slog.Info("Scanned receipt", "path", storedPath, "text_length", len(text))
	return &ScanResult{StoredPath: storedPath, PublicURL: publicURL, Text: text}, nil
}

// Interpret runs the interpretation pipeline on OCR text
func (s *Service) Interpret(ctx context.Context, ocrText string) (*interpret.InterpretedReceipt, error) {
	return s.interpreter.Interpret(ctx, ocrText)
}

// Process scans an upload and interprets it into a draft for review
func (s *Service) Process(ctx context.Context, filename string, data []byte, contentType string) (*Draft, error) {
	scan, err := s.Scan(ctx, filename, data, contentType)
	if err != nil {
		return nil, err
	}

	interpreted, err := s.interpreter.Interpret(ctx, scan.Text)
	if err != nil {
		return nil, err
	}

	draft := NewDraft(interpreted)
	draft.RawText = scan.Text
	draft.FileURL = scan.PublicURL
	draft.FilePath = scan.StoredPath
	return draft, nil
}

// Create validates a confirmed draft and prepends it to the history
func (s *Service) Create(ctx context.Context, draft *Draft) (*Receipt, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	date := now.Format("2006-01-02")
	if t, ok := analytics.ParseDate(draft.Date); ok {
		date = t.Format("2006-01-02")
	}

	items := make([]Item, 0, len(draft.Items))
	for _, item := range draft.Items {
		if item.ID == "" {
			item.ID = s.idGenerator.Generate()
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		items = append(items, item)
	}

	emojiTag := draft.EmojiTag
	if emojiTag == "" {
		emojiTag = draft.Category.Emoji()
	}

	paymentMethod := interpret.NormalizePaymentMethod(string(draft.PaymentMethod))

	receipt := &Receipt{
		ID:            s.idGenerator.Generate(),
		Vendor:        strings.TrimSpace(draft.Vendor),
		Date:          date,
		Total:         draft.Total,
		Tax:           draft.Tax,
		Subtotal:      draft.Subtotal,
		Items:         items,
		PaymentMethod: paymentMethod,
		Confidence:    draft.Confidence,
		Category:      draft.Category,
		CreatedAt:     now,
		Summary:       draft.Summary,
		Notes:         draft.Notes,
		RawText:       draft.RawText,
		EmojiTag:      emojiTag,
		FileURL:       draft.FileURL,
		FilePath:      draft.FilePath,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.history.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if err := s.history.ReplaceAll(append([]*Receipt{receipt}, all...)); err != nil {
		return nil, fmt.Errorf("saving history: %w", err)
	}

	slog.Info("Saved receipt", "id", receipt.ID, "vendor", receipt.Vendor, "total", receipt.Total)
	return receipt, nil
}

func validateDraft(draft *Draft) error {
	if draft == nil {
		return fmt.Errorf("%w: body is required", ErrInvalidDraft)
	}
	if !draft.Confirmed {
		return fmt.Errorf("%w: receipt must be confirmed before saving", ErrInvalidDraft)
	}
	if strings.TrimSpace(draft.Vendor) == "" {
		return fmt.Errorf("%w: vendor is required", ErrInvalidDraft)
	}
	if draft.Total <= 0 {
		return fmt.Errorf("%w: total must be greater than zero", ErrInvalidDraft)
	}
	if !draft.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidDraft, draft.Category)
	}
	if draft.Date != "" {
		if _, ok := analytics.ParseDate(draft.Date); !ok {
			return fmt.Errorf("%w: date %q is not a recognized date", ErrInvalidDraft, draft.Date)
		}
	}
	return nil
}

// List returns receipts matching the filter, newest first
func (s *Service) List(filter Filter) ([]*Receipt, error) {
	all, err := s.history.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]*Receipt, 0, len(all))
	for _, r := range all {
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.FavoritesOnly && !r.Favorite {
			continue
		}
		if filter.PinnedOnly && !r.Pinned {
			continue
		}
		if query != "" && !matches(r, query) {
			continue
		}
		matched = append(matched, r)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func matches(r *Receipt, query string) bool {
	if strings.Contains(strings.ToLower(r.Vendor), query) ||
		strings.Contains(strings.ToLower(string(r.Category)), query) {
		return true
	}
	for _, item := range r.Items {
		if strings.Contains(strings.ToLower(item.Name), query) {
			return true
		}
	}
	return false
}

// Get returns a receipt by ID
func (s *Service) Get(id string) (*Receipt, error) {
	all, err := s.history.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if i := indexOf(all, id); i >= 0 {
		return all[i], nil
	}
	return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
}

// Delete removes a receipt and its stored file
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.history.LoadAll()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	i := indexOf(all, id)
	if i < 0 {
		return fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}
	removed := all[i]

	if err := s.history.ReplaceAll(append(all[:i:i], all[i+1:]...)); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}

	if removed.FilePath != "" {
		if err := s.storage.Delete(ctx, removed.FilePath); err != nil {
			slog.Warn("Failed to delete receipt file", "id", id, "path", removed.FilePath, "error", err)
		}
	}
	slog.Info("Deleted receipt", "id", id)
	return nil
}

// ToggleFavorite flips the favorite flag
func (s *Service) ToggleFavorite(id string) (*Receipt, error) {
	return s.mutate(id, func(r *Receipt) {
		r.Favorite = !r.Favorite
	})
}

// TogglePinned flips the pinned flag
func (s *Service) TogglePinned(id string) (*Receipt, error) {
	return s.mutate(id, func(r *Receipt) {
		r.Pinned = !r.Pinned
	})
}

// UpdateNotes replaces the receipt notes
func (s *Service) UpdateNotes(id string, notes string) (*Receipt, error) {
	return s.mutate(id, func(r *Receipt) {
		r.Notes = strings.TrimSpace(notes)
	})
}

// RegenerateSummary writes a fresh single-receipt summary onto the receipt
func (s *Service) RegenerateSummary(ctx context.Context, id string) (*Receipt, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	req := summary.Request{Type: summary.TypeSingle, Receipt: toSummaryReceipt(current)}
	text, err := s.summarizer.Summarize(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.mutate(id, func(r *Receipt) {
		r.Summary = text
	})
}

// Summarize passes a caller-built request to the summarizer
func (s *Service) Summarize(ctx context.Context, req summary.Request) (string, error) {
	return s.summarizer.Summarize(ctx, req)
}

// SummarizeHistory writes a narrative over every saved receipt
func (s *Service) SummarizeHistory(ctx context.Context) (string, error) {
	all, err := s.history.LoadAll()
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	receipts := make([]summary.Receipt, 0, len(all))
	for _, r := range all {
		receipts = append(receipts, *toSummaryReceipt(r))
	}
	return s.summarizer.Summarize(ctx, summary.Request{Type: summary.TypeBulk, Receipts: receipts})
}

// mutate applies fn to one receipt and rewrites the history
func (s *Service) mutate(id string, fn func(r *Receipt)) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.history.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	i := indexOf(all, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}

	fn(all[i])
	if err := s.history.ReplaceAll(all); err != nil {
		return nil, fmt.Errorf("saving history: %w", err)
	}
	return all[i], nil
}

// File returns a stored upload
func (s *Service) File(ctx context.Context, path string) ([]byte, error) {
	return s.storage.Get(ctx, path)
}

func indexOf(receipts []*Receipt, id string) int {
	for i, r := range receipts {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func toSummaryReceipt(r *Receipt) *summary.Receipt {
	items := make([]summary.Item, len(r.Items))
	for i, item := range r.Items {
		items[i] = summary.Item{Name: item.Name}
	}
	return &summary.Receipt{
		Vendor:   r.Vendor,
		Date:     r.Date,
		Total:    r.Total,
		Category: string(r.Category),
		Items:    items,
	}
}
