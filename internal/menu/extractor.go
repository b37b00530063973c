package menu

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/menu-scan/internal/config"
	"github.com/zombor/menu-scan/internal/scanning"
)

// Extractor runs every image of an upload through the scanner and collects
// the sanitized records
type Extractor struct {
	scanner     scanning.Scanner
	timeout     time.Duration
	attempts    uint
	retryDelay  time.Duration
	concurrency int
}

// NewExtractor creates an Extractor calling scanner with the limits in cfg
func NewExtractor(scanner scanning.Scanner, cfg config.Scanner) *Extractor {
	e := &Extractor{
		scanner:     scanner,
		timeout:     cfg.Timeout,
		attempts:    uint(max(cfg.Attempts, 1)),
		retryDelay:  cfg.RetryDelay,
		concurrency: max(cfg.Concurrency, 1),
	}
	if e.timeout <= 0 {
		e.timeout = 90 * time.Second
	}
	return e
}

type imageOutcome struct {
	records []Record
	result  ImageResult
}

// Extract scans all images and concatenates their records in image order.
// An image whose call fails, times out or returns unreadable text adds no
// records; Extract itself never fails.
func (e *Extractor) Extract(ctx context.Context, batchID string, images []Image) Batch {
	outcomes := make([]imageOutcome, len(images))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, img := range images {
		g.Go(func() error {
			outcomes[i] = e.extractImage(ctx, batchID, img)
			return nil
		})
	}
	_ = g.Wait()

	batch := Batch{
		ID:      batchID,
		Records: make([]Record, 0),
		Images:  make([]ImageResult, 0, len(images)),
	}
	for _, o := range outcomes {
		batch.Records = append(batch.Records, o.records...)
		batch.Images = append(batch.Images, o.result)
	}
	return batch
}

func (e *Extractor) extractImage(ctx context.Context, batchID string, img Image) imageOutcome {
	result := ImageResult{Filename: img.Filename}
	start := time.Now()

	raw, err := e.scan(ctx, img)
	if err != nil {
		slog.Error("Failed to scan menu image",
			"batch_id", batchID,
			"filename", img.Filename,
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"duration", time.Since(start),
			"error", err,
		)
		result.Error = err.Error()
		return imageOutcome{result: result}
	}

	outcome := scanning.Sanitize(raw)
	if outcome.Failed() {
		slog.Warn("Discarding unreadable model response",
			"batch_id", batchID,
			"filename", img.Filename,
			"response_size", len(raw),
			"reason", outcome.Failure,
		)
		result.Error = outcome.Failure.Error()
		return imageOutcome{result: result}
	}

	records := recordsFromItems(outcome.Items)
	result.Records = len(records)
	result.Dropped = outcome.Dropped
	slog.Info("Scanned menu image",
		"batch_id", batchID,
		"filename", img.Filename,
		"records", result.Records,
		"dropped", result.Dropped,
		"duration", time.Since(start),
	)
	return imageOutcome{records: records, result: result}
}

// scan calls the model, bounding every attempt by the configured timeout
func (e *Extractor) scan(ctx context.Context, img Image) (string, error) {
	var raw string
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			text, err := e.scanner.ScanMenu(callCtx, img.Data, img.ContentType)
			if err != nil {
				return err
			}
			raw = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(e.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, scanning.ErrUnsupportedImage)
		}),
	)
	return raw, err
}
