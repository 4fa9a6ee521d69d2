package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the query methods it actually calls, not the full
// domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// MarketArchiveStore provides read access to settled markets for archival.
type MarketArchiveStore interface {
	// ListSettledBefore returns every fully settled market last updated
	// strictly before the cutoff.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// StakeArchiveStore provides read access to a market's stakes for archival.
type StakeArchiveStore interface {
	ListByMarket(ctx context.Context, market common.Hash, opts domain.ListOpts) ([]domain.Stake, error)
}

// AuditArchiveStore provides read access to the audit trail for archival.
type AuditArchiveStore interface {
	// ListBefore returns every audit entry created strictly before the
	// cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// marketSnapshot is the archived representation of one settled market: the
// full market record plus every stake that ever entered it.
type marketSnapshot struct {
	Market domain.Market  `json:"market"`
	Stakes []domain.Stake `json:"stakes"`
}

// ArchiveImpl implements domain.Archiver by querying the stores for settled
// records, serializing them to JSONL, and uploading the result to object
// storage.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to be executed after the
// archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets MarketArchiveStore
	stakes  StakeArchiveStore
	trail   AuditArchiveStore
	audit   domain.AuditStore
	prefix  string
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl. The prefix is the leading path
// segment of every uploaded key; empty means "archive".
func NewArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	stakes StakeArchiveStore,
	trail AuditArchiveStore,
	audit domain.AuditStore,
	prefix string,
) *ArchiveImpl {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		stakes:  stakes,
		trail:   trail,
		audit:   audit,
		prefix:  prefix,
	}
}

// ArchiveSettledMarkets snapshots every fully settled market (with its
// stakes) last touched before the cutoff and uploads the batch as one JSONL
// file partitioned by the cutoff's year-month. The archival event is
// recorded in the audit log and the count of archived markets is returned.
func (a *ArchiveImpl) ArchiveSettledMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	snapshots := make([]marketSnapshot, 0, len(markets))
	for _, m := range markets {
		stakes, err := a.stakes.ListByMarket(ctx, m.Address, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive stakes for %s: %w", m.Address, err)
		}
		snapshots = append(snapshots, marketSnapshot{Market: m, Stakes: stakes})
	}

	buf, err := marshalJSONL(snapshots)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := a.archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	count := int64(len(snapshots))

	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog uploads every audit entry created before the cutoff as one
// JSONL file partitioned by the cutoff's year-month. The count of archived
// entries is returned.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.trail.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := a.archivePath("audit_log", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.audit_log", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log entry: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	settled/markets/2026-08.jsonl
//	settled/audit_log/2026-08.jsonl
func (a *ArchiveImpl) archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
