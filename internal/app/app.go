package app

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"notewise/internal/util"
	"notewise/pkg/ai"
	"notewise/pkg/domain"
	"notewise/pkg/extract"
	"notewise/pkg/storage"
	"notewise/pkg/store"
)

const (
	defaultMaxUploadBytes = 20 << 20
	presignExpiry         = 15 * time.Minute
)

// ArtifactGenerator produces study artifacts from note text.
type ArtifactGenerator interface {
	Summary(ctx context.Context, sourceText string) (string, error)
	Quiz(ctx context.Context, sourceText string) ([]ai.QuizItem, error)
	Reply(ctx context.Context, sourceText string, history []ai.Turn, userMessage string) (string, error)
}

// Config wires the application's dependencies.
type Config struct {
	Store     store.Store
	Generator ArtifactGenerator
	// Objects is optional. Without it originals are not retained and only
	// the extracted text survives the upload.
	Objects        storage.ObjectStore
	PostgresDSN    string
	MaxUploadBytes int64
}

// App implements the note, artifact, and chat operations.
type App struct {
	store          store.Store
	generator      ArtifactGenerator
	objects        storage.ObjectStore
	maxUploadBytes int64
}

// New builds the application core. When cfg.Store is nil a GORM store is
// opened against cfg.PostgresDSN.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		gs, err := store.NewGormStore(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		dataStore = gs
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("app: generator required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &App{
		store:          dataStore,
		generator:      cfg.Generator,
		objects:        cfg.Objects,
		maxUploadBytes: maxUpload,
	}, nil
}

// UploadNote extracts text from an uploaded document and persists the note.
// The original bytes are kept in object storage when available; a failed
// object upload degrades to a note without a stored original.
func (a *App) UploadNote(ctx context.Context, ownerID, filename string, data []byte) (domain.Note, error) {
	if int64(len(data)) > a.maxUploadBytes {
		return domain.Note{}, ErrUploadTooLarge
	}
	format, err := formatForFilename(filename)
	if err != nil {
		return domain.Note{}, err
	}
	text, err := extract.Extract(ctx, data, format)
	if err != nil {
		return domain.Note{}, err
	}

	id := util.NewID()
	storageKey := ""
	if a.objects != nil {
		key := buildStorageKey(id, filename)
		contentType := mime.TypeByExtension(filepath.Ext(filename))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			util.LoggerFromContext(ctx).Warn("store original failed, keeping text only",
				"note_id", id, "error", err)
		} else {
			storageKey = key
		}
	}

	note := domain.Note{
		ID:           id,
		OwnerID:      ownerID,
		Title:        titleForFilename(filename),
		Text:         text,
		SourceFormat: format,
		ByteSize:     int64(len(data)),
		StorageKey:   storageKey,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateNote(note); err != nil {
		if storageKey != "" {
			_ = a.objects.Delete(ctx, storageKey)
		}
		return domain.Note{}, fmt.Errorf("save note: %w", err)
	}
	return note, nil
}

// ListNotes returns the owner's notes, newest first.
func (a *App) ListNotes(ctx context.Context, ownerID string) ([]domain.Note, error) {
	return a.store.ListNotesByOwner(ownerID)
}

// GetNote returns one note owned by the caller.
func (a *App) GetNote(ctx context.Context, ownerID, noteID string) (domain.Note, error) {
	return a.getOwnedNote(ownerID, noteID)
}

// DeleteNote removes a note and all artifacts derived from it. The stored
// original is deleted best effort after the database cascade succeeds.
func (a *App) DeleteNote(ctx context.Context, ownerID, noteID string) error {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteNote(note.ID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if note.StorageKey != "" && a.objects != nil {
		if err := a.objects.Delete(ctx, note.StorageKey); err != nil {
			util.LoggerFromContext(ctx).Warn("delete original failed",
				"note_id", note.ID, "error", err)
		}
	}
	return nil
}

// GenerateSummary produces and persists a new summary for the note. Each call
// appends a new row; LatestSummary serves the current one.
func (a *App) GenerateSummary(ctx context.Context, ownerID, noteID string) (domain.Summary, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return domain.Summary{}, err
	}
	text, err := a.generator.Summary(ctx, note.Text)
	if err != nil {
		return domain.Summary{}, err
	}
	summary := domain.Summary{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		NoteID:    note.ID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateSummary(summary); err != nil {
		return domain.Summary{}, fmt.Errorf("save summary: %w", err)
	}
	return summary, nil
}

// LatestSummary returns the most recent summary for a note, if any.
func (a *App) LatestSummary(ctx context.Context, ownerID, noteID string) (domain.Summary, bool, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return domain.Summary{}, false, err
	}
	return a.store.LatestSummaryByNote(note.ID)
}

// Stats returns the owner's dashboard counters.
func (a *App) Stats(ctx context.Context, ownerID string) (domain.Stats, error) {
	return a.store.CountByOwner(ownerID)
}

// DownloadURL returns a pre-signed URL for the note's original document.
func (a *App) DownloadURL(ctx context.Context, ownerID, noteID string) (string, error) {
	note, err := a.getOwnedNote(ownerID, noteID)
	if err != nil {
		return "", err
	}
	if note.StorageKey == "" || a.objects == nil {
		return "", ErrOriginalUnavailable
	}
	url, err := a.objects.PresignGet(ctx, note.StorageKey, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

func (a *App) getOwnedNote(ownerID, noteID string) (domain.Note, error) {
	note, ok, err := a.store.GetNote(noteID)
	if err != nil {
		return domain.Note{}, fmt.Errorf("load note: %w", err)
	}
	if !ok {
		return domain.Note{}, ErrNoteNotFound
	}
	if note.OwnerID != ownerID {
		return domain.Note{}, ErrForbidden
	}
	return note, nil
}

func formatForFilename(filename string) (domain.SourceFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".text":
		return domain.FormatText, nil
	case ".pdf":
		return domain.FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func titleForFilename(filename string) string {
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled"
	}
	return title
}

func buildStorageKey(noteID, filename string) string {
	return fmt.Sprintf("notes/%s/%s", noteID, filepath.Base(filename))
}
