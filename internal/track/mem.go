package track

import (
	"context"
	"sync"
)

// MemStorage keeps tracks and reports in process memory. Used for tests and
// storage-less deployments where durability is not required.
type MemStorage struct {
	lock         sync.Mutex
	tracks       map[string]*Track
	reports      map[string]*Report
	trackSeqNo   int64
	reportSeqNo  int64
	tracksByCode map[string]string
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		tracks:       map[string]*Track{},
		reports:      map[string]*Report{},
		tracksByCode: map[string]string{},
	}
}

func (s *MemStorage) CreateTrack(_ context.Context, t *Track) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.trackSeqNo++
	t.SeqNo = s.trackSeqNo
	cp := *t
	s.tracks[t.ID] = &cp
	s.tracksByCode[t.ShareCode] = t.ID
	return nil
}

func (s *MemStorage) FinishTrack(_ context.Context, id string, end TrackEnd) (*Track, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	endedAt := end.EndedAt
	distance := end.DistanceMeters
	duration := end.DurationSeconds
	t.EndedAt = &endedAt
	t.DistanceMeters = &distance
	t.DurationSeconds = &duration
	if end.SnapshotURL != nil {
		t.SnapshotURL = end.SnapshotURL
	}
	cp := *t
	return &cp, nil
}

func (s *MemStorage) GetTrack(_ context.Context, id string) (*Track, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemStorage) GetTrackByShareCode(_ context.Context, code string) (*Track, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	id, ok := s.tracksByCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemStorage) CreateReport(_ context.Context, r *Report) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.reportSeqNo++
	r.SeqNo = s.reportSeqNo
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func (s *MemStorage) GetReport(_ context.Context, id string) (*Report, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemStorage) HealthCheck() error {
	return nil
}
