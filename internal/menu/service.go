package menu

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator generates batch IDs
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Service drives one upload through extraction and the store
type Service struct {
	store       Store
	extractor   *Extractor
	archive     Archive
	idGenerator IDGenerator
}

// NewService creates a new Service. archive may be nil.
func NewService(store Store, extractor *Extractor, archive Archive) *Service {
	return NewServiceWithDeps(store, extractor, archive, &uuidGenerator{})
}

// NewServiceWithDeps creates a new Service with a custom ID generator for testing
func NewServiceWithDeps(store Store, extractor *Extractor, archive Archive, idGen IDGenerator) *Service {
	return &Service{
		store:       store,
		extractor:   extractor,
		archive:     archive,
		idGenerator: idGen,
	}
}

// Result is what an upload request renders
type Result struct {
	Batch   Batch    `json:"batch"`
	Records []Record `json:"records"`
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_ ")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "menu"
	}
	return base + ext
}

// Process extracts records from images, stores them and returns every
// stored record. With no images it returns an empty list without touching
// the store.
func (s *Service) Process(ctx context.Context, images []Image) (*Result, error) {
	if len(images) == 0 {
		return &Result{Records: []Record{}}, nil
	}

	batchID := s.idGenerator.Generate()
	s.archiveImages(ctx, batchID, images)

	batch := s.extractor.Extract(ctx, batchID, images)

	var records []Record
	err := s.store.WithSession(ctx, func(session Session) error {
		inserted, err := session.InsertAll(ctx, batch.Records)
		if err != nil {
			return err
		}
		batch.Records = inserted

		// Read after the write so the caller sees its own records
		records, err = session.ListAll(ctx)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to store menu batch",
			"batch_id", batchID,
			"records", len(batch.Records),
			"error", err,
		)
		return nil, fmt.Errorf("storing batch %s: %w", batchID, err)
	}

	slog.Info("Stored menu batch",
		"batch_id", batchID,
		"images", len(images),
		"records", len(batch.Records),
		"total", len(records),
	)
	return &Result{Batch: batch, Records: records}, nil
}

// List returns every stored record
func (s *Service) List(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.store.WithSession(ctx, func(session Session) error {
		var err error
		records, err = session.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// archiveImages keeps a copy of each upload. Failures are logged only.
func (s *Service) archiveImages(ctx context.Context, batchID string, images []Image) {
	if s.archive == nil {
		return
	}
	for i, img := range images {
		key := fmt.Sprintf("%s/%02d_%s", batchID, i+1, sanitizeFilename(img.Filename))
		location, err := s.archive.Save(ctx, key, img.ContentType, img.Data)
		if err != nil {
			slog.Warn("Failed to archive menu image", "batch_id", batchID, "filename", img.Filename, "error", err)
			continue
		}
		slog.Debug("Archived menu image", "batch_id", batchID, "location", location)
	}
}
