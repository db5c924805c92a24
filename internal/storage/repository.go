package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertCycleSampleSQL = `INSERT INTO cycle_samples (
        cycle_ts,
        sun_azimuth,
        sun_elevation,
        forecast_max,
        temp_hot,
        weather_sunny,
        covers_total,
        covers_moved,
        status,
        message
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (cycle_ts) DO UPDATE
    SET
        sun_azimuth   = EXCLUDED.sun_azimuth,
        sun_elevation = EXCLUDED.sun_elevation,
        forecast_max  = EXCLUDED.forecast_max,
        temp_hot      = EXCLUDED.temp_hot,
        weather_sunny = EXCLUDED.weather_sunny,
        covers_total  = EXCLUDED.covers_total,
        covers_moved  = EXCLUDED.covers_moved,
        status        = EXCLUDED.status,
        message       = EXCLUDED.message;`

	listSamplesBetweenSQL = `SELECT
        cycle_ts,
        sun_azimuth,
        sun_elevation,
        forecast_max,
        temp_hot,
        weather_sunny,
        covers_total,
        covers_moved,
        status,
        message,
        created_at
    FROM cycle_samples
    WHERE cycle_ts >= $1
      AND cycle_ts < $2
    ORDER BY cycle_ts;`

	listRecentSamplesSQL = `SELECT
        cycle_ts,
        sun_azimuth,
        sun_elevation,
        forecast_max,
        temp_hot,
        weather_sunny,
        covers_total,
        covers_moved,
        status,
        message,
        created_at
    FROM cycle_samples
    ORDER BY cycle_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM cycle_samples;`

	insertMovementSQL = `INSERT INTO cover_movements (
        cycle_ts,
        cover_id,
        reason,
        from_position,
        to_position
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, cycle_ts, cover_id, reason, from_position, to_position, created_at;`

	listRecentMovementsSQL = `SELECT
        id,
        cycle_ts,
        cover_id,
        reason,
        from_position,
        to_position,
        created_at
    FROM cover_movements
    ORDER BY created_at DESC
    LIMIT $1;`

	listMovementsBetweenSQL = `SELECT
        id,
        cycle_ts,
        cover_id,
        reason,
        from_position,
        to_position,
        created_at
    FROM cover_movements
    WHERE cycle_ts >= $1
      AND cycle_ts < $2
    ORDER BY cycle_ts;`

	deleteMovementsBeforeSQL = `DELETE FROM cover_movements WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CycleSampleStore defines operations for cycle sample persistence.
type CycleSampleStore interface {
	UpsertCycleSample(ctx context.Context, sample CycleSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CycleSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]CycleSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// MovementStore defines operations for movement auditing.
type MovementStore interface {
	InsertMovement(ctx context.Context, movement CoverMovement) (CoverMovement, error)
	ListRecentMovements(ctx context.Context, limit int) ([]CoverMovement, error)
	ListMovementsBetween(ctx context.Context, from, to time.Time) ([]CoverMovement, error)
	DeleteMovementsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to cycle samples and cover movements.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertCycleSample persists or updates a cycle sample.
func (s *Store) UpsertCycleSample(ctx context.Context, sample CycleSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var message interface{}
	if sample.Message != nil {
		message = *sample.Message
	}

	_, execErr := pool.Exec(ctx, upsertCycleSampleSQL,
		sample.CycleTS,
		sample.SunAzimuth,
		sample.SunElevation,
		sample.ForecastMax.String(),
		sample.TempHot,
		sample.WeatherSunny,
		sample.CoversTotal,
		sample.CoversMoved,
		sample.Status,
		message,
	)
	if execErr != nil {
		return fmt.Errorf("upsert cycle sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CycleSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]CycleSample, 0)
	for rows.Next() {
		sample, scanErr := scanCycleSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending cycle time.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]CycleSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]CycleSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanCycleSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertMovement persists an issued cover movement.
func (s *Store) InsertMovement(ctx context.Context, movement CoverMovement) (CoverMovement, error) {
	pool, err := s.getPool()
	if err != nil {
		return CoverMovement{}, err
	}

	row := pool.QueryRow(ctx, insertMovementSQL,
		movement.CycleTS,
		movement.CoverID,
		movement.Reason,
		movement.FromPosition,
		movement.ToPosition,
	)

	var rec CoverMovement
	if scanErr := row.Scan(
		&rec.ID,
		&rec.CycleTS,
		&rec.CoverID,
		&rec.Reason,
		&rec.FromPosition,
		&rec.ToPosition,
		&rec.CreatedAt,
	); scanErr != nil {
		return CoverMovement{}, fmt.Errorf("insert movement: %w", scanErr)
	}

	return rec, nil
}

// ListRecentMovements lists most recent movements.
func (s *Store) ListRecentMovements(ctx context.Context, limit int) ([]CoverMovement, error) {
	return s.queryMovements(ctx, listRecentMovementsSQL, limit)
}

// ListMovementsBetween lists movements within a time window.
func (s *Store) ListMovementsBetween(ctx context.Context, from, to time.Time) ([]CoverMovement, error) {
	return s.queryMovements(ctx, listMovementsBetweenSQL, from, to)
}

func (s *Store) queryMovements(ctx context.Context, query string, args ...any) ([]CoverMovement, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list movements: %w", queryErr)
	}
	defer rows.Close()

	movements := make([]CoverMovement, 0)
	for rows.Next() {
		var rec CoverMovement
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleTS,
			&rec.CoverID,
			&rec.Reason,
			&rec.FromPosition,
			&rec.ToPosition,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		movements = append(movements, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return movements, nil
}

// DeleteMovementsBefore deletes historical movements.
func (s *Store) DeleteMovementsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteMovementsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete movements before: %w", execErr)
	}
	return nil
}

func scanCycleSample(rows pgx.Rows) (CycleSample, error) {
	var (
		cycleTS      time.Time
		sunAzimuth   float64
		sunElevation float64
		forecastStr  string
		tempHot      bool
		weatherSunny bool
		coversTotal  int
		coversMoved  int
		status       string
		message      sql.NullString
		createdAt    time.Time
	)

	if err := rows.Scan(
		&cycleTS,
		&sunAzimuth,
		&sunElevation,
		&forecastStr,
		&tempHot,
		&weatherSunny,
		&coversTotal,
		&coversMoved,
		&status,
		&message,
		&createdAt,
	); err != nil {
		return CycleSample{}, err
	}

	forecastMax, err := decimal.NewFromString(forecastStr)
	if err != nil {
		return CycleSample{}, fmt.Errorf("parse forecast max: %w", err)
	}

	sample := CycleSample{
		CycleTS:      cycleTS,
		SunAzimuth:   sunAzimuth,
		SunElevation: sunElevation,
		ForecastMax:  forecastMax,
		TempHot:      tempHot,
		WeatherSunny: weatherSunny,
		CoversTotal:  coversTotal,
		CoversMoved:  coversMoved,
		Status:       status,
		CreatedAt:    createdAt,
	}

	if message.Valid {
		msg := message.String
		sample.Message = &msg
	}

	return sample, nil
}
