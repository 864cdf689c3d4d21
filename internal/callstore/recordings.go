package callstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
)

// PostgresRecordingStore persists recording artifacts. Upsert conflicts on
// the provider's external id so a redelivered recording-saved event updates
// the existing row instead of duplicating the artifact.
type PostgresRecordingStore struct {
	db *sql.DB
}

func NewPostgresRecordingStore(db *sql.DB) *PostgresRecordingStore {
	return &PostgresRecordingStore{db: db}
}

func (s *PostgresRecordingStore) Upsert(ctx context.Context, r *bridge.Recording) error {
	query := `INSERT INTO recordings
		(recording_id, call_id, external_id, format, duration_seconds,
		 fetch_url, fetch_url_expires_at, download_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (external_id) DO UPDATE SET
			format = EXCLUDED.format,
			duration_seconds = EXCLUDED.duration_seconds,
			fetch_url = EXCLUDED.fetch_url,
			fetch_url_expires_at = EXCLUDED.fetch_url_expires_at`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.CallID, r.ExternalID, r.Format, r.DurationSeconds,
		r.FetchURL, r.FetchURLExpires, string(r.DownloadStatus), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("callstore: upsert recording: %w", err)
	}
	return nil
}

// SetDownloadStatus is used by the download pipeline, not the state machine.
func (s *PostgresRecordingStore) SetDownloadStatus(ctx context.Context, externalID string, status bridge.DownloadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET download_status = $1 WHERE external_id = $2`,
		string(status), externalID,
	)
	if err != nil {
		return fmt.Errorf("callstore: update recording status: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return bridge.ErrNotFound
	}
	return nil
}
