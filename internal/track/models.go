package track

import "time"

// Track is one recorded breadcrumb session. SeqNo is the server-computed
// human-readable number shown on printed reports; ShareCode is the public
// handle for read-only sharing.
type Track struct {
	ID              string     `json:"id"`
	SeqNo           int64      `json:"seq_no"`
	ShareCode       string     `json:"share_code"`
	DogName         string     `json:"dog_name"`
	OperatorName    string     `json:"operator_name"`
	DeviceTopic     string     `json:"device_topic"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DistanceMeters  *float64   `json:"distance_meters,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	SnapshotURL     *string    `json:"snapshot_url,omitempty"`
}

// TrackEnd carries the end-of-track metrics attached when recording stops.
type TrackEnd struct {
	EndedAt         time.Time
	DistanceMeters  float64
	DurationSeconds int64
	SnapshotURL     *string
}

// Report is one incident report, optionally tied to a track and a map
// snapshot image.
type Report struct {
	ID          string    `json:"id"`
	SeqNo       int64     `json:"seq_no"`
	TrackID     *string   `json:"track_id,omitempty"`
	Title       string    `json:"title"`
	Narrative   string    `json:"narrative"`
	SnapshotURL *string   `json:"snapshot_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
