package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/audit"
)

// CompressionAlgo specifies how the payload column is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which zstd is used.
const DefaultCompressThreshold = 4 * 1024

// AuditEntry is one sys_audit row.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	Command           string          `db:"command"`
	Action            audit.Action    `db:"action"`
	BatchID           *id.ID          `db:"batch_id"`
	Success           bool            `db:"success"`
	Code              string          `db:"code"`
	Message           string          `db:"message"`
	Operator          string          `db:"operator"`
	RequestID         string          `db:"request_id"`
	Origin            string          `db:"origin"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditStore writes audit records to sys_audit and implements audit.Sink.
type AuditStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	builder           squirrel.StatementBuilderType
}

var _ audit.Sink = (*AuditStore)(nil)

// NewAuditStore creates an audit store.
func NewAuditStore(txManager *TxManager) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Write implements audit.Sink.
func (s *AuditStore) Write(ctx context.Context, r audit.Record) error {
	entry, err := s.toEntry(r)
	if err != nil {
		return err
	}

	sql, args, err := s.insertQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *AuditStore) toEntry(r audit.Record) (AuditEntry, error) {
	entry := AuditEntry{
		ID:              r.ID,
		Command:         r.Command,
		Action:          r.Action,
		Success:         r.Success,
		Code:            r.Code,
		Message:         r.Message,
		Operator:        r.Operator,
		RequestID:       r.RequestID,
		Origin:          r.Origin,
		CompressionAlgo: CompressionNone,
		CreatedAt:       r.CreatedAt,
	}
	if !id.IsNil(r.BatchID) {
		batchID := r.BatchID
		entry.BatchID = &batchID
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if r.Payload != nil {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return AuditEntry{}, fmt.Errorf("marshal audit payload: %w", err)
		}
		entry.Payload = payload
	}

	if len(entry.Payload) > s.compressThreshold {
		entry.PayloadCompressed = s.encoder.EncodeAll(entry.Payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

func (s *AuditStore) insertQuery(e AuditEntry) squirrel.InsertBuilder {
	return s.builder.Insert("sys_audit").SetMap(StructToMap(e))
}

// History returns the newest audit entries of a batch with payloads decompressed.
func (s *AuditStore) History(ctx context.Context, batchID id.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	sql, args, err := s.builder.
		Select(ExtractDBColumns[AuditEntry]()...).
		From("sys_audit").
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit history: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			payload, err := s.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
			e.Payload = payload
			e.PayloadCompressed = nil
		}
	}
	return entries, nil
}
