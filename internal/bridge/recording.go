package bridge

import (
	"context"
	"time"
)

// DownloadStatus tracks the out-of-band recording download pipeline.
type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "pending_download"
	DownloadDownloaded DownloadStatus = "downloaded"
	DownloadFailed     DownloadStatus = "failed"
)

// Recording is one provider-side recording artifact. Created on the
// recording-saved event; the download pipeline mutates status afterwards.
// The fetch URL is short-lived, so its expiry is persisted for the
// downloader to prioritize.
type Recording struct {
	ID              string         `json:"recording_id" db:"recording_id"`
	CallID          string         `json:"call_id" db:"call_id"`
	ExternalID      string         `json:"external_id" db:"external_id"`
	Format          string         `json:"format" db:"format"`
	DurationSeconds int            `json:"duration_seconds" db:"duration_seconds"`
	FetchURL        string         `json:"fetch_url" db:"fetch_url"`
	FetchURLExpires *time.Time     `json:"fetch_url_expires_at,omitempty" db:"fetch_url_expires_at"`
	DownloadStatus  DownloadStatus `json:"download_status" db:"download_status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// RecordingStore persists recording artifacts.
type RecordingStore interface {
	// Upsert is keyed on ExternalID so provider redelivery of a
	// recording-saved event updates the same row.
	Upsert(ctx context.Context, r *Recording) error
}
