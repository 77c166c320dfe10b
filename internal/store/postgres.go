// Package store persists alerts and engine settings in PostgreSQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Alias1177/Screener/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			coin TEXT NOT NULL,
			condition TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			kind TEXT,
			period INT,
			use_trend BOOLEAN NOT NULL DEFAULT FALSE,
			sr_filter TEXT,
			frequency TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_state TEXT,
			last_state_changed_at TIMESTAMP,
			last_checked_at TIMESTAMP,
			last_triggered TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_settings (
			id INT PRIMARY KEY,
			check_interval_minutes INT NOT NULL,
			timezone TEXT NOT NULL,
			quiet_hours_start TEXT,
			quiet_hours_end TEXT
		)
	`)
	return err
}

// LoadAlerts returns every persisted alert.
func (db *DB) LoadAlerts() ([]models.Alert, error) {
	rows, err := db.Query(`
		SELECT
			id, coin, condition, timeframe, kind, period, use_trend,
			sr_filter, frequency, enabled, created_at,
			last_state, last_state_changed_at, last_checked_at, last_triggered
		FROM alerts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var kind sql.NullString
		var period sql.NullInt64
		var srFilter, lastState sql.NullString
		var stateChanged, checked, triggered sql.NullTime

		err := rows.Scan(
			&a.ID, &a.Coin, &a.Condition, &a.Spec.Timeframe, &kind, &period, &a.UseTrend,
			&srFilter, &a.Frequency, &a.Enabled, &a.CreatedAt,
			&lastState, &stateChanged, &checked, &triggered,
		)
		if err != nil {
			return nil, err
		}

		if kind.Valid {
			a.Spec.Kind = models.IndicatorKind(kind.String)
		}
		if period.Valid {
			a.Spec.Period = int(period.Int64)
		}
		if srFilter.Valid {
			a.SRFilter = models.SRLabel(srFilter.String)
		}
		if lastState.Valid {
			a.LastState = models.AlertState(lastState.String)
		}
		if stateChanged.Valid {
			a.LastStateChangedAt = stateChanged.Time
		}
		if checked.Valid {
			a.LastCheckedAt = checked.Time
		}
		if triggered.Valid {
			a.LastTriggered = triggered.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SaveAlert upserts one alert, definition and state fields together.
func (db *DB) SaveAlert(a models.Alert) error {
	_, err := db.Exec(`
		INSERT INTO alerts (
			id, coin, condition, timeframe, kind, period, use_trend,
			sr_filter, frequency, enabled, created_at,
			last_state, last_state_changed_at, last_checked_at, last_triggered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id)
		DO UPDATE SET
			coin = EXCLUDED.coin,
			condition = EXCLUDED.condition,
			timeframe = EXCLUDED.timeframe,
			kind = EXCLUDED.kind,
			period = EXCLUDED.period,
			use_trend = EXCLUDED.use_trend,
			sr_filter = EXCLUDED.sr_filter,
			frequency = EXCLUDED.frequency,
			enabled = EXCLUDED.enabled,
			last_state = EXCLUDED.last_state,
			last_state_changed_at = EXCLUDED.last_state_changed_at,
			last_checked_at = EXCLUDED.last_checked_at,
			last_triggered = EXCLUDED.last_triggered
	`,
		a.ID, a.Coin, string(a.Condition), string(a.Spec.Timeframe),
		string(a.Spec.Kind), a.Spec.Period, a.UseTrend,
		string(a.SRFilter), string(a.Frequency), a.Enabled, a.CreatedAt,
		string(a.LastState), nullTime(a.LastStateChangedAt),
		nullTime(a.LastCheckedAt), nullTime(a.LastTriggered),
	)
	return err
}

// DeleteAlert removes one alert by id.
func (db *DB) DeleteAlert(id string) error {
	_, err := db.Exec(`DELETE FROM alerts WHERE id = $1`, id)
	return err
}

// LoadSettings returns the persisted engine settings, or the defaults when
// nothing has been saved yet.
func (db *DB) LoadSettings() (models.EngineSettings, error) {
	var s models.EngineSettings
	var start, end sql.NullString

	err := db.QueryRow(`
		SELECT check_interval_minutes, timezone, quiet_hours_start, quiet_hours_end
		FROM engine_settings
		WHERE id = 1
	`).Scan(&s.CheckIntervalMinutes, &s.Timezone, &start, &end)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultSettings(), nil
		}
		return models.DefaultSettings(), err
	}

	if start.Valid {
		s.QuietHoursStart = start.String
	}
	if end.Valid {
		s.QuietHoursEnd = end.String
	}
	return s, nil
}

// SaveSettings upserts the single settings row.
func (db *DB) SaveSettings(s models.EngineSettings) error {
	_, err := db.Exec(`
		INSERT INTO engine_settings (id, check_interval_minutes, timezone, quiet_hours_start, quiet_hours_end)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			check_interval_minutes = EXCLUDED.check_interval_minutes,
			timezone = EXCLUDED.timezone,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end
	`, s.CheckIntervalMinutes, s.Timezone, s.QuietHoursStart, s.QuietHoursEnd)
	return err
}

func nullTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
