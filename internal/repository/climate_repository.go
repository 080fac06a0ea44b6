package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
)

// ClimateRepository provides read-only access to the measurement and station tables.
// Every call checks out its own connection and returns it before returning.
type ClimateRepository interface {
	AllPrecipitation(ctx context.Context) ([]models.PrecipitationReading, error)
	AllStations(ctx context.Context) ([]models.StationName, error)
	MostRecentDate(ctx context.Context) (string, error)
	MostActiveStation(ctx context.Context) (string, error)
	TemperatureObservations(ctx context.Context, stationID, sinceDate string) ([]models.TemperatureObservation, error)
	TemperatureSummary(ctx context.Context, startDate string, endDate *string) (models.TemperatureSummary, error)

	HealthCheck(ctx context.Context) error
}

// climateRepository implements ClimateRepository
type climateRepository struct {
	db     *database.DB
	logger *logging.ContextLogger
}

// NewClimateRepository creates a new climate repository
func NewClimateRepository(db *database.DB, logger *logging.StructuredLogger) ClimateRepository {
	return &climateRepository{
		db:     db,
		logger: logger.WithFields(logging.Fields{"component": "climate_repository"}),
	}
}

// AllPrecipitation returns the date and prcp of every measurement, nulls included.
// Rows come back in id order.
func (r *climateRepository) AllPrecipitation(ctx context.Context) ([]models.PrecipitationReading, error) {
	query := `
		SELECT date, prcp
		FROM measurement
		ORDER BY id
	`

	var readings []models.PrecipitationReading
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.SelectContext(ctx, "all_precipitation", &readings, query)
	})
	if err != nil {
		return nil, unavailable("all_precipitation", err)
	}

	return readings, nil
}

// AllStations returns stations that have at least one measurement
func (r *climateRepository) AllStations(ctx context.Context) ([]models.StationName, error) {
	query := `
		SELECT DISTINCT s.station, s.name
		FROM station s
		JOIN measurement m ON s.station = m.station
		ORDER BY s.station
	`

	var stations []models.StationName
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.SelectContext(ctx, "all_stations", &stations, query)
	})
	if err != nil {
		return nil, unavailable("all_stations", err)
	}

	return stations, nil
}

// MostRecentDate returns MAX(date) over all measurements
func (r *climateRepository) MostRecentDate(ctx context.Context) (string, error) {
	query := `SELECT MAX(date) FROM measurement`

	var date sql.NullString
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.GetContext(ctx, "most_recent_date", &date, query)
	})
	if err != nil {
		return "", unavailable("most_recent_date", err)
	}

	if !date.Valid {
		return "", ErrEmptyDataset
	}

	return date.String, nil
}

// MostActiveStation returns the station with the most measurements.
// Ties go to the lowest station code.
func (r *climateRepository) MostActiveStation(ctx context.Context) (string, error) {
	query := `
		SELECT station
		FROM measurement
		GROUP BY station
		ORDER BY COUNT(id) DESC, station ASC
		LIMIT 1
	`

	var station string
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.GetContext(ctx, "most_active_station", &station, query)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmptyDataset
	}
	if err != nil {
		return "", unavailable("most_active_station", err)
	}

	return station, nil
}

// TemperatureObservations returns the station's tobs readings on or after sinceDate
func (r *climateRepository) TemperatureObservations(ctx context.Context, stationID, sinceDate string) ([]models.TemperatureObservation, error) {
	query := `
		SELECT date, tobs
		FROM measurement
		WHERE station = ? AND date >= ?
		ORDER BY id
	`

	var observations []models.TemperatureObservation
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.SelectContext(ctx, "temperature_observations", &observations, query, stationID, sinceDate)
	})
	if err != nil {
		return nil, unavailable("temperature_observations", err)
	}

	r.logger.Debug(ctx, "[REPO_TOBS] Temperature observations loaded", logging.Fields{
		"station_id": stationID,
		"since":      sinceDate,
		"count":      len(observations),
	})

	return observations, nil
}

// TemperatureSummary aggregates tobs over date >= startDate and, when endDate is set, date <= endDate.
// An empty range yields a summary whose fields are all nil.
func (r *climateRepository) TemperatureSummary(ctx context.Context, startDate string, endDate *string) (models.TemperatureSummary, error) {
	query := `
		SELECT
			MAX(tobs) AS temp_max,
			MIN(tobs) AS temp_min,
			AVG(tobs) AS temp_avg
		FROM measurement
		WHERE date >= ?
	`
	args := []interface{}{startDate}

	if endDate != nil {
		query += " AND date <= ?"
		args = append(args, *endDate)
	}

	var summary models.TemperatureSummary
	err := r.db.WithConn(ctx, func(conn *database.Conn) error {
		return conn.GetContext(ctx, "temperature_summary", &summary, query, args...)
	})
	if err != nil {
		return models.TemperatureSummary{}, unavailable("temperature_summary", err)
	}

	return summary, nil
}

// HealthCheck performs a repository health check
func (r *climateRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		return unavailable("health_check", err)
	}
	return nil
}

// ErrEmptyDataset is returned when a lookup needs at least one measurement row
var ErrEmptyDataset = errors.New("dataset contains no measurements")

// DataStoreUnavailableError wraps a failure to reach or query the store
type DataStoreUnavailableError struct {
	Op  string
	Err error
}

func unavailable(op string, err error) error {
	return &DataStoreUnavailableError{Op: op, Err: err}
}

func (e *DataStoreUnavailableError) Error() string {
	return fmt.Sprintf("data store unavailable during %s: %v", e.Op, e.Err)
}

func (e *DataStoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient returns true; the dataset itself is static so a later attempt may succeed
func (e *DataStoreUnavailableError) IsTransient() bool {
	return true
}
