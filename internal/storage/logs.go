package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const insertContentLogSQL = `INSERT INTO content_logs (
    user_id,
    alert_id,
    channel,
    content,
    provider_ref
) VALUES (
    $1,$2,$3,$4,$5
);`

// ContentLogStore persists rendered content for audit and debugging.
type ContentLogStore interface {
	InsertContentLogs(ctx context.Context, logs []ContentLog) error
}

// InsertContentLogs appends content audit rows, batched for throughput.
func (s *Store) InsertContentLogs(ctx context.Context, logs []ContentLog) error {
	if len(logs) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, entry := range logs {
		batch.Queue(insertContentLogSQL, entry.UserID, entry.AlertID, string(entry.Channel), entry.Content, entry.ProviderRef)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range logs {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert content logs: %w", execErr)
		}
	}
	return nil
}

var _ ContentLogStore = (*Store)(nil)
