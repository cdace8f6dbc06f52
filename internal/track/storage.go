package track

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a track or report does not exist.
var ErrNotFound = errors.New("not found")

type Storage interface {
	// CreateTrack inserts the track and fills in its server-computed SeqNo.
	CreateTrack(ctx context.Context, t *Track) error
	// FinishTrack attaches end-of-track metrics and an optional snapshot
	// reference to an existing track.
	FinishTrack(ctx context.Context, id string, end TrackEnd) (*Track, error)
	GetTrack(ctx context.Context, id string) (*Track, error)
	GetTrackByShareCode(ctx context.Context, code string) (*Track, error)

	// CreateReport inserts the report and fills in its SeqNo.
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)

	HealthCheck() error
}

func NewStorage(storageType string, uri string) (Storage, error) {
	switch storageType {
	case "postgres":
		return NewPgStorage(uri)
	case "memory":
		return NewMemStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
