package report

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/particle-data/mobility.report/internal/analysis"
	"github.com/particle-data/mobility.report/internal/track"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps analysis run history in a SQLite database.
type Store struct {
	*sql.DB
}

// RunRecord is one persisted analysis run.
type RunRecord struct {
	RunID                 string
	SourceFolder          string
	SpeedThreshold        float64
	DisplacementThreshold float64
	LinearityThreshold    float64
	BaselineMultiplier    float64
	CreatedAt             time.Time
}

// OpenStore opens (creating if needed) the store at path and applies
// any pending schema migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp applies the embedded migrations up to the latest version.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Note: not closing m here, it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SaveRun persists a whole run result and returns its generated run id.
func (s *Store) SaveRun(sourceFolder string, result *analysis.RunResult) (string, error) {
	runID := uuid.New().String()

	tx, err := s.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means the transaction was already committed.
			_ = err
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (
			run_id, source_folder, speed_threshold,
			displacement_threshold, linearity_threshold, baseline_multiplier
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		runID,
		sourceFolder,
		result.Thresholds.Speed,
		result.Thresholds.Displacement,
		result.Thresholds.Linearity,
		result.Thresholds.Multiplier,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, res := range result.Conditions {
		if err := insertCondition(tx, runID, res); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save run: %w", err)
	}
	return runID, nil
}

func insertCondition(tx *sql.Tx, runID string, res analysis.ConditionResult) error {
	_, err := tx.Exec(`
		INSERT INTO condition_summaries (
			run_id, label, frequency_hz, valid, initial_count, final_count,
			mean_displacement, mean_speed, mean_median_speed, mean_quality,
			mean_total_distance, mean_straight_line_speed, mean_linearity,
			std_displacement, std_speed, std_median_speed, std_quality,
			std_total_distance, std_straight_line_speed, std_linearity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		res.Label,
		res.FrequencyHz,
		res.Summary.Valid,
		nullInt(res.Summary.Valid, res.Summary.InitialCount),
		nullInt(res.Summary.Valid, res.Summary.FinalCount),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColDisplacement),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColMeanSpeed),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColMedianSpeed),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColMeanQuality),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColTotalDistance),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColStraightLineSpeed),
		nullStat(res.Summary.Valid, res.Summary.Means, track.ColLinearity),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColDisplacement),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColMeanSpeed),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColMedianSpeed),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColMeanQuality),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColTotalDistance),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColStraightLineSpeed),
		nullStat(res.Summary.Valid, res.Summary.Stds, track.ColLinearity),
	)
	if err != nil {
		return fmt.Errorf("insert summary %s: %w", res.Label, err)
	}

	for _, d := range res.Drops {
		_, err := tx.Exec(`
			INSERT INTO dropped_tracks (run_id, label, row_id, speed, reason)
			VALUES (?, ?, ?, ?, ?)
		`, runID, res.Label, d.RowID, d.Speed, string(d.Reason))
		if err != nil {
			return fmt.Errorf("insert dropped track %s/%d: %w", res.Label, d.RowID, err)
		}
	}

	for _, rev := range res.Reversions {
		_, err := tx.Exec(`
			INSERT INTO pipeline_reversions (run_id, label, stage, rows_before)
			VALUES (?, ?, ?, ?)
		`, runID, res.Label, rev.Stage, rev.RowsBefore)
		if err != nil {
			return fmt.Errorf("insert reversion %s/%s: %w", res.Label, rev.Stage, err)
		}
	}

	return nil
}

// GetRun retrieves a persisted run by id.
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.QueryRow(`
		SELECT run_id, source_folder, speed_threshold,
		       displacement_threshold, linearity_threshold, baseline_multiplier, created_at
		FROM analysis_runs
		WHERE run_id = ?
	`, runID).Scan(
		&rec.RunID,
		&rec.SourceFolder,
		&rec.SpeedThreshold,
		&rec.DisplacementThreshold,
		&rec.LinearityThreshold,
		&rec.BaselineMultiplier,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

// CountDroppedTracks returns how many dropped-track records a run holds
// for a condition label.
func (s *Store) CountDroppedTracks(runID, label string) (int, error) {
	var n int
	err := s.QueryRow(`
		SELECT COUNT(*) FROM dropped_tracks WHERE run_id = ? AND label = ?
	`, runID, label).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dropped tracks: %w", err)
	}
	return n, nil
}

func nullInt(valid bool, v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: valid}
}

func nullStat(valid bool, m map[string]float64, col string) sql.NullFloat64 {
	if !valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: m[col], Valid: true}
}
