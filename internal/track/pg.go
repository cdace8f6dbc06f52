package track

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/k9trail/bridge/internal/config"
)

var storageErrorsMetric = promauto.NewCounter(prometheus.CounterOpts{
	Name: "number_of_track_storage_errors",
	Help: "The total number of track storage query errors",
})

type PgStorage struct {
	postgres *pgxpool.Pool
}

//go:embed migrations/*.sql
var fs embed.FS

func MigrateDb(postgresURI string) error {
	log := logrus.WithField("prefix", "MigrateDb")
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		log.Info("iofs err: ", err)
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, postgresURI)
	if err != nil {
		log.Info("source instance err: ", err)
		return err
	}
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("DB is up to date")
		return nil
	} else if err != nil {
		return err
	}
	log.Info("DB updated successfully")
	return nil
}

// configurePoolSettings creates a new pgxpool.Config with settings from environment variables
func configurePoolSettings(postgresURI string) (*pgxpool.Config, error) {
	log := logrus.WithField("prefix", "configurePoolSettings")

	poolConfig, err := pgxpool.ParseConfig(postgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres URI: %w", err)
	}

	poolConfig.MaxConns = config.Config.PostgresMaxConns
	poolConfig.MinConns = config.Config.PostgresMinConns

	if maxLifetime, err := time.ParseDuration(config.Config.PostgresMaxConnLifetime); err == nil {
		poolConfig.MaxConnLifetime = maxLifetime
	} else {
		log.Warnf("Invalid PostgresMaxConnLifetime '%s', using default", config.Config.PostgresMaxConnLifetime)
	}

	if maxIdleTime, err := time.ParseDuration(config.Config.PostgresMaxConnIdleTime); err == nil {
		poolConfig.MaxConnIdleTime = maxIdleTime
	} else {
		log.Warnf("Invalid PostgresMaxConnIdleTime '%s', using default", config.Config.PostgresMaxConnIdleTime)
	}

	if healthCheckPeriod, err := time.ParseDuration(config.Config.PostgresHealthCheckPeriod); err == nil {
		poolConfig.HealthCheckPeriod = healthCheckPeriod
	} else {
		log.Warnf("Invalid PostgresHealthCheckPeriod '%s', using default", config.Config.PostgresHealthCheckPeriod)
	}

	return poolConfig, nil
}

// NewPgStorage connects to Postgres, retrying with fibonacci backoff so a
// bridge starting alongside its database does not flap.
func NewPgStorage(postgresURI string) (*PgStorage, error) {
	log := logrus.WithField("prefix", "NewPgStorage")

	poolConfig, err := configurePoolSettings(postgresURI)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var connErr error
		pool, connErr = pgxpool.ConnectConfig(ctx, poolConfig)
		if connErr != nil {
			log.Warnf("postgres connect failed, retrying: %v", connErr)
			return retry.RetryableError(connErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err = MigrateDb(postgresURI); err != nil {
		log.Info("migrate err: ", err)
		return nil, err
	}

	return &PgStorage{postgres: pool}, nil
}

const trackColumns = "id, seq_no, share_code, dog_name, operator_name, device_topic, started_at, ended_at, distance_meters, duration_seconds, snapshot_url"

func scanTrack(row pgx.Row) (*Track, error) {
	var t Track
	err := row.Scan(&t.ID, &t.SeqNo, &t.ShareCode, &t.DogName, &t.OperatorName, &t.DeviceTopic,
		&t.StartedAt, &t.EndedAt, &t.DistanceMeters, &t.DurationSeconds, &t.SnapshotURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		storageErrorsMetric.Inc()
		return nil, err
	}
	return &t, nil
}

func (s *PgStorage) CreateTrack(ctx context.Context, t *Track) error {
	err := s.postgres.QueryRow(ctx,
		`INSERT INTO tracks (id, share_code, dog_name, operator_name, device_topic, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq_no`,
		t.ID, t.ShareCode, t.DogName, t.OperatorName, t.DeviceTopic, t.StartedAt,
	).Scan(&t.SeqNo)
	if err != nil {
		storageErrorsMetric.Inc()
		return err
	}
	return nil
}

func (s *PgStorage) FinishTrack(ctx context.Context, id string, end TrackEnd) (*Track, error) {
	row := s.postgres.QueryRow(ctx,
		`UPDATE tracks
		 SET ended_at = $2, distance_meters = $3, duration_seconds = $4,
		     snapshot_url = COALESCE($5, snapshot_url)
		 WHERE id = $1
		 RETURNING `+trackColumns,
		id, end.EndedAt, end.DistanceMeters, end.DurationSeconds, end.SnapshotURL)
	return scanTrack(row)
}

func (s *PgStorage) GetTrack(ctx context.Context, id string) (*Track, error) {
	row := s.postgres.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1`, id)
	return scanTrack(row)
}

func (s *PgStorage) GetTrackByShareCode(ctx context.Context, code string) (*Track, error) {
	row := s.postgres.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE share_code = $1`, code)
	return scanTrack(row)
}

func (s *PgStorage) CreateReport(ctx context.Context, r *Report) error {
	err := s.postgres.QueryRow(ctx,
		`INSERT INTO reports (id, track_id, title, narrative, snapshot_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq_no`,
		r.ID, r.TrackID, r.Title, r.Narrative, r.SnapshotURL, r.CreatedAt,
	).Scan(&r.SeqNo)
	if err != nil {
		storageErrorsMetric.Inc()
		return err
	}
	return nil
}

func (s *PgStorage) GetReport(ctx context.Context, id string) (*Report, error) {
	var r Report
	err := s.postgres.QueryRow(ctx,
		`SELECT id, seq_no, track_id, title, narrative, snapshot_url, created_at
		 FROM reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.SeqNo, &r.TrackID, &r.Title, &r.Narrative, &r.SnapshotURL, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		storageErrorsMetric.Inc()
		return nil, err
	}
	return &r, nil
}

func (s *PgStorage) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.postgres.Ping(ctx)
}
