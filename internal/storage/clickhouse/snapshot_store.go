package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"babylon-funds/internal/domain"
	"babylon-funds/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse. NAV
// history is append-only timeseries data, which is what the MergeTree engine
// is for; the relational rows stay in Postgres.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot point.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.PoolValueSnapshot) error {
	if snap == nil || snap.PoolID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pool_value_snapshots (
			pool_id, timestamp_ms, available_balance, total_value,
			lifetime_pnl, share_price, open_positions
		)
	`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.PoolID, uint64(snap.TimestampMs),
		snap.AvailableBalance, snap.TotalValue,
		snap.LifetimePnL, snap.SharePrice,
		uint32(snap.OpenPositions),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPoolID retrieves all snapshots for a pool, ordered by timestamp ASC.
func (s *SnapshotStore) GetByPoolID(ctx context.Context, poolID string) ([]*domain.PoolValueSnapshot, error) {
	query := `
		SELECT pool_id, timestamp_ms, available_balance, total_value,
		       lifetime_pnl, share_price, open_positions
		FROM pool_value_snapshots
		WHERE pool_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by pool id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByTimeRange retrieves snapshots for a pool within [start, end] (inclusive).
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, poolID string, start, end int64) ([]*domain.PoolValueSnapshot, error) {
	query := `
		SELECT pool_id, timestamp_ms, available_balance, total_value,
		       lifetime_pnl, share_price, open_positions
		FROM pool_value_snapshots
		WHERE pool_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, poolID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query snapshots by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshots scans rows into a slice of PoolValueSnapshot.
func scanSnapshots(rows driver.Rows) ([]*domain.PoolValueSnapshot, error) {
	var snaps []*domain.PoolValueSnapshot

	for rows.Next() {
		var (
			snap        domain.PoolValueSnapshot
			timestampMs uint64
			openCount   uint32
		)

		err := rows.Scan(
			&snap.PoolID, &timestampMs, &snap.AvailableBalance, &snap.TotalValue,
			&snap.LifetimePnL, &snap.SharePrice, &openCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.TimestampMs = int64(timestampMs)
		snap.OpenPositions = int(openCount)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
