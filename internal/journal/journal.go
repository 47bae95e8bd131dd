package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib" // Registers the "pgx" driver.
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.

	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
)

//go:embed migrations
var migrations embed.FS

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	// writeTimeout bounds a single recorder write.
	writeTimeout = 3 * time.Second
)

// errEmptyDSN is returned by Open without a DSN.
var errEmptyDSN = errors.New("journal dsn is empty")

// Journal stores episodes of one process run.
type Journal struct {
	// db is the open database.
	db *sql.DB
	// driver is the database/sql driver name.
	driver string
	// runID identifies the process run; episode numbers restart per run.
	runID string
}

// Open connects to dsn and applies the migrations.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	driver, source, dialect, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if driver == driverSQLite {
		if dir := filepath.Dir(strings.TrimPrefix(source, "file:")); dir != "." && !strings.HasPrefix(source, ":memory:") {
			if err = os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal folder: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if driver == driverSQLite {
		// SQLite allows one writer; a single connection also keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err = migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{
		db:     db,
		driver: driver,
		runID:  uuid.NewString(),
	}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RunID returns the identifier of the current process run.
func (j *Journal) RunID() string {
	return j.runID
}

// EpisodeStarted inserts the episode. Failures are logged.
func (j *Journal) EpisodeStarted(ctx context.Context, episode detection.Episode) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, j.rebind(
		`INSERT INTO episodes (run_id, episode_no, started_at_ms, samples, peak_score, min_ear)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		j.runID,
		int64(episode.ID),
		episode.StartedAt.UnixMilli(),
		episode.Samples,
		episode.PeakScore,
		episode.MinEAR,
	)
	if err != nil {
		logger.WarnKV(ctx, "Failed to journal episode start", "episode", episode.ID, "error", err)
	}
}

// EpisodeEnded updates the episode with its final figures. Failures are logged.
func (j *Journal) EpisodeEnded(ctx context.Context, episode detection.Episode) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, j.rebind(
		`UPDATE episodes
		 SET ended_at_ms = ?, samples = ?, peak_score = ?, min_ear = ?, end_reason = ?
		 WHERE run_id = ? AND episode_no = ?`),
		episode.EndedAt.UnixMilli(),
		episode.Samples,
		episode.PeakScore,
		episode.MinEAR,
		string(episode.EndReason),
		j.runID,
		int64(episode.ID),
	)
	if err != nil {
		logger.WarnKV(ctx, "Failed to journal episode end", "episode", episode.ID, "error", err)
	}
}

// CalibrationFinished stores a calibration session.
func (j *Journal) CalibrationFinished(ctx context.Context, session detection.CalibrationSession) error {
	_, err := j.db.ExecContext(ctx, j.rebind(
		`INSERT INTO calibration_sessions
		 (session_id, run_id, started_at_ms, ended_at_ms, samples, min_ear, max_ear, avg_ear)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(),
		j.runID,
		session.StartedAt.UnixMilli(),
		session.EndedAt.UnixMilli(),
		session.Stats.Count,
		nullFloat(session.Stats.Min),
		nullFloat(session.Stats.Max),
		nullFloat(session.Stats.Avg),
	)
	if err != nil {
		return fmt.Errorf("insert calibration session: %w", err)
	}

	return nil
}

// RecentEpisodes returns up to limit episodes of all runs, newest first.
func (j *Journal) RecentEpisodes(ctx context.Context, limit int) ([]detection.Episode, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(
		`SELECT episode_no, started_at_ms, ended_at_ms, samples, peak_score, min_ear, end_reason
		 FROM episodes
		 ORDER BY started_at_ms DESC, id DESC
		 LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}

	defer rows.Close()

	var episodes []detection.Episode

	for rows.Next() {
		var (
			episode   detection.Episode
			number    int64
			startedAt int64
			endedAt   sql.NullInt64
			reason    string
		)

		if err = rows.Scan(&number, &startedAt, &endedAt, &episode.Samples,
			&episode.PeakScore, &episode.MinEAR, &reason); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}

		episode.ID = uint64(number)
		episode.StartedAt = time.UnixMilli(startedAt)
		episode.EndReason = detection.EpisodeEndReason(reason)

		if endedAt.Valid {
			episode.EndedAt = time.UnixMilli(endedAt.Int64)
		}

		episodes = append(episodes, episode)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	return episodes, nil
}

// CalibrationSessions returns up to limit sessions, newest first.
func (j *Journal) CalibrationSessions(ctx context.Context, limit int) ([]detection.CalibrationSession, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(
		`SELECT started_at_ms, ended_at_ms, samples, min_ear, max_ear, avg_ear
		 FROM calibration_sessions
		 ORDER BY ended_at_ms DESC, id DESC
		 LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query calibration sessions: %w", err)
	}

	defer rows.Close()

	var sessions []detection.CalibrationSession

	for rows.Next() {
		var (
			session            detection.CalibrationSession
			startedAt, endedAt int64
			minEAR, maxEAR     sql.NullFloat64
			avgEAR             sql.NullFloat64
		)

		if err = rows.Scan(&startedAt, &endedAt, &session.Stats.Count, &minEAR, &maxEAR, &avgEAR); err != nil {
			return nil, fmt.Errorf("scan calibration session: %w", err)
		}

		session.StartedAt = time.UnixMilli(startedAt)
		session.EndedAt = time.UnixMilli(endedAt)
		session.Stats.Min = floatPtr(minEAR)
		session.Stats.Max = floatPtr(maxEAR)
		session.Stats.Avg = floatPtr(avgEAR)

		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calibration sessions: %w", err)
	}

	return sessions, nil
}

// rebind turns ? placeholders into $n for postgres.
func (j *Journal) rebind(query string) string {
	if j.driver != driverPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for _, r := range query {
		if r == '?' {
			n++

			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

func parseDSN(dsn string) (driver, source string, dialect goose.Dialect, err error) {
	dsn = strings.TrimSpace(dsn)

	switch {
	case dsn == "":
		return "", "", "", errEmptyDSN
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return driverPostgres, dsn, goose.DialectPostgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return driverSQLite, strings.TrimPrefix(dsn, "sqlite://"), goose.DialectSQLite3, nil
	default:
		return driverSQLite, dsn, goose.DialectSQLite3, nil
	}
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	dir := "migrations/sqlite"
	if dialect == goose.DialectPostgres {
		dir = "migrations/postgres"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, result := range results {
		logger.DebugKV(ctx, "Journal migration applied",
			"version", result.Source.Version,
			"duration", result.Duration)
	}

	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}

	return &v.Float64
}
