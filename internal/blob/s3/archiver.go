package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/quantlab/papertrader/internal/domain"
)

// BlobWriter is the upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ReasoningTrail is the slice of domain.ReasoningStore the archiver needs.
type ReasoningTrail interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ReasoningEntry, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// HistoryTrail is the slice of domain.HistoryStore the archiver needs.
type HistoryTrail interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.HistoryEntry, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// archiveBatchSize bounds one ListBefore page so a long-neglected trail does
// not get marshalled in a single allocation.
const archiveBatchSize = 5000

// TrailArchiver moves aged reasoning and history rows to JSONL files in
// object storage, then prunes them from the primary store. Each page is
// uploaded and then deleted by id before the next ListBefore call, so paging
// always advances; a failed upload leaves its rows in place for the next run.
type TrailArchiver struct {
	writer    BlobWriter
	reasoning ReasoningTrail
	history   HistoryTrail
	batchSize int
}

func NewTrailArchiver(writer BlobWriter, reasoning ReasoningTrail, history HistoryTrail) *TrailArchiver {
	return &TrailArchiver{
		writer:    writer,
		reasoning: reasoning,
		history:   history,
		batchSize: archiveBatchSize,
	}
}

type reasoningRow struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol,omitempty"`
	Step      string          `json:"step"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type historyRow struct {
	ID                 string    `json:"id"`
	Symbol             string    `json:"symbol"`
	Action             string    `json:"action"`
	PositionSize       float64   `json:"position_size"`
	Reason             string    `json:"reason"`
	Executed           bool      `json:"executed"`
	OrderID            *string   `json:"order_id,omitempty"`
	GuardrailTriggered bool      `json:"guardrail_triggered"`
	CreatedAt          time.Time `json:"created_at"`
}

// ArchiveReasoning exports reasoning entries created before the cutoff to
// part-numbered JSONL files under archive/reasoning/ and deletes them.
// Returns the number of rows pruned.
func (a *TrailArchiver) ArchiveReasoning(ctx context.Context, before time.Time) (int64, error) {
	var pruned int64
	for part := 0; ; part++ {
		batch, err := a.reasoning.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive reasoning query: %w", err)
		}
		if len(batch) == 0 {
			return pruned, nil
		}

		rows := make([]reasoningRow, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, e := range batch {
			raw, err := domain.MarshalStepData(e.Data)
			if err != nil {
				return pruned, fmt.Errorf("s3blob: archive reasoning encode %s: %w", e.ID, err)
			}
			rows = append(rows, reasoningRow{
				ID:        e.ID,
				Symbol:    e.Symbol,
				Step:      string(e.Step),
				Message:   e.Message,
				Data:      raw,
				CreatedAt: e.CreatedAt,
			})
			ids = append(ids, e.ID)
		}

		buf, err := marshalJSONL(rows)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive reasoning marshal: %w", err)
		}
		path := archivePath("reasoning", before, part)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return pruned, fmt.Errorf("s3blob: archive reasoning upload %s: %w", path, err)
		}
		n, err := a.reasoning.Delete(ctx, ids)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive reasoning prune: %w", err)
		}
		pruned += n

		if len(batch) < a.batchSize {
			return pruned, nil
		}
	}
}

// ArchiveHistory exports decision audit entries created before the cutoff to
// part-numbered JSONL files under archive/history/ and deletes them.
func (a *TrailArchiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	var pruned int64
	for part := 0; ; part++ {
		batch, err := a.history.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive history query: %w", err)
		}
		if len(batch) == 0 {
			return pruned, nil
		}

		rows := make([]historyRow, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, e := range batch {
			rows = append(rows, historyRow{
				ID:                 e.ID,
				Symbol:             e.Symbol,
				Action:             string(e.Action),
				PositionSize:       e.PositionSize,
				Reason:             e.Reason,
				Executed:           e.Executed,
				OrderID:            e.OrderID,
				GuardrailTriggered: e.GuardrailTriggered,
				CreatedAt:          e.CreatedAt,
			})
			ids = append(ids, e.ID)
		}

		buf, err := marshalJSONL(rows)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive history marshal: %w", err)
		}
		path := archivePath("history", before, part)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return pruned, fmt.Errorf("s3blob: archive history upload %s: %w", path, err)
		}
		n, err := a.history.Delete(ctx, ids)
		if err != nil {
			return pruned, fmt.Errorf("s3blob: archive history prune: %w", err)
		}
		pruned += n

		if len(batch) < a.batchSize {
			return pruned, nil
		}
	}
}

// archivePath partitions archive files by the cutoff's year-month, with one
// part per uploaded page:
//
//	archive/reasoning/2026-08-000.jsonl
//	archive/history/2026-08-001.jsonl
func archivePath(kind string, before time.Time, part int) string {
	return fmt.Sprintf("archive/%s/%s-%03d.jsonl", kind, before.Format("2006-01"), part)
}

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
