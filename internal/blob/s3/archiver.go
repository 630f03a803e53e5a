package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcarden/arbscan/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to
// the multipart path.
const multipartThreshold = int64(8 * 1024 * 1024)

// Archiver periodically uploads the closed-opportunity audit log to
// object storage as JSONL, one object per day. The local audit file
// stays authoritative; the archive is an off-box copy.
type Archiver struct {
	writer   *Writer
	audit    domain.AuditSnapshotter
	interval time.Duration
	logger   *slog.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// NewArchiver creates an Archiver that uploads every interval.
func NewArchiver(writer *Writer, audit domain.AuditSnapshotter, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		audit:    audit,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// Run uploads on a fixed cadence until the context is cancelled, then
// performs one final upload so records closed during shutdown are not
// lost.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := a.Archive(flushCtx); err != nil {
				a.logger.Warn("final archive upload failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			count, err := a.Archive(ctx)
			if err != nil {
				a.logger.Warn("archive upload failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.Debug("audit log archived", slog.Int64("records", count))
		}
	}
}

// Archive serializes the current audit snapshot to JSONL and uploads it.
// Returns the number of records uploaded; an empty log uploads nothing.
func (a *Archiver) Archive(ctx context.Context) (int64, error) {
	records := a.audit.Snapshot()
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(a.now())
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	return int64(len(records)), nil
}

// archivePath builds the object key, partitioned by day:
//
//	archive/audit/2026-02-10.jsonl
func archivePath(at time.Time) string {
	return fmt.Sprintf("archive/audit/%s.jsonl", at.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL(records []domain.ClosedOpportunity) ([]byte, error) {
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
