package clickhouse

import (
	"context"
	"fmt"

	"token-raise-service/internal/domain"
	"token-raise-service/internal/storage"
)

// AuditEventStore implements storage.AuditEventStore using ClickHouse.
//
// The audit trail is append-only and read per round, which fits a MergeTree
// ordered by (round_id, timestamp_ms, event_id). MergeTree does not enforce
// uniqueness, so duplicates are rejected with an explicit existence check.
type AuditEventStore struct {
	conn *Conn
}

// NewAuditEventStore creates a new AuditEventStore.
func NewAuditEventStore(conn *Conn) *AuditEventStore {
	return &AuditEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditEventStore = (*AuditEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *AuditEventStore) Insert(ctx context.Context, e *domain.AuditEvent) error {
	exists, err := s.exists(ctx, e.EventID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO audit_events (
			event_id, round_id, op, actor, timestamp_ms, amount,
			raised_before, raised_after, sold_before, sold_after,
			phase_before, phase_after
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		e.EventID, e.RoundID, e.Op, e.Actor,
		uint64(e.Timestamp), e.Amount,
		e.RaisedBefore, e.RaisedAfter, e.SoldBefore, e.SoldAfter,
		e.PhaseBefore, e.PhaseAfter,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events in one batch, e.g. when replaying a
// trail from another store. Fails the entire batch on a duplicate event_id.
func (s *AuditEventStore) InsertBulk(ctx context.Context, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}

		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_events (
			event_id, round_id, op, actor, timestamp_ms, amount,
			raised_before, raised_after, sold_before, sold_after,
			phase_before, phase_after
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, e.RoundID, e.Op, e.Actor,
			uint64(e.Timestamp), e.Amount,
			e.RaisedBefore, e.RaisedAfter, e.SoldBefore, e.SoldAfter,
			e.PhaseBefore, e.PhaseAfter,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByRound retrieves all events for a round, ordered by timestamp ASC.
func (s *AuditEventStore) ListByRound(ctx context.Context, roundID string) ([]*domain.AuditEvent, error) {
	query := `
		SELECT event_id, round_id, op, actor, timestamp_ms, amount,
		       raised_before, raised_after, sold_before, sold_after,
		       phase_before, phase_after
		FROM audit_events
		WHERE round_id = ?
		ORDER BY timestamp_ms ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("query by round id: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows)
}

// exists checks if an event with the given ID exists.
func (s *AuditEventStore) exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT count(*) FROM audit_events WHERE event_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the minimal row iterator the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanAuditEvents scans multiple rows.
func scanAuditEvents(rows chRows) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent

	for rows.Next() {
		var e domain.AuditEvent
		var timestampMs uint64

		err := rows.Scan(
			&e.EventID, &e.RoundID, &e.Op, &e.Actor, &timestampMs, &e.Amount,
			&e.RaisedBefore, &e.RaisedAfter, &e.SoldBefore, &e.SoldAfter,
			&e.PhaseBefore, &e.PhaseAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}

		e.Timestamp = int64(timestampMs)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}

	return events, nil
}
