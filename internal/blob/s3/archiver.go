package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/calweaver/whalebot/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.AlertArchiver by moving old alert-log rows to
// object storage as JSONL. Rows are deleted from the primary store only after
// the upload succeeded; a failed upload leaves the log intact and the next
// run picks the same rows up again.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	alerts domain.AlertStore
	logger *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, alerts domain.AlertStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		alerts: alerts,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveAlerts uploads all alerts sent before the cutoff to
// archive/alerts/YYYY-MM.jsonl and then trims them from the log. Rows already
// archived under the same month are preserved: the existing object is read
// back and the new rows are appended before the re-upload. It returns the
// number of newly archived rows.
func (a *Archiver) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(alerts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts marshal: %w", err)
	}

	path := archivePath(before)
	existing, err := a.readExisting(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts read existing: %w", err)
	}
	if len(existing) > 0 {
		buf = append(existing, buf...)
	}
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts upload: %w", err)
	}

	deleted, err := a.alerts.DeleteBefore(ctx, before)
	if err != nil {
		// The upload is durable; next month's file just repeats these rows.
		return int64(len(alerts)), fmt.Errorf("s3blob: archive alerts trim: %w", err)
	}

	a.logger.Info("archived alerts",
		slog.String("path", path),
		slog.Int("count", len(alerts)),
		slog.Int64("deleted", deleted),
	)

	return int64(len(alerts)), nil
}

// readExisting returns the current content of the month's archive object, or
// nil when the object does not exist yet.
func (a *Archiver) readExisting(ctx context.Context, path string) ([]byte, error) {
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/alerts/2026-07.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/alerts/%s.jsonl", before.UTC().Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.AlertArchiver = (*Archiver)(nil)
