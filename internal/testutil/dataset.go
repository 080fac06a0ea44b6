// Package testutil builds in-memory climate datasets for tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Schema mirrors the measurement and station tables of hawaii.sqlite
const Schema = `
CREATE TABLE station (
  id        INTEGER PRIMARY KEY,
  station   TEXT NOT NULL,
  name      TEXT NOT NULL,
  latitude  FLOAT,
  longitude FLOAT,
  elevation FLOAT
);
CREATE UNIQUE INDEX idx_station_station ON station(station);

CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY,
  station TEXT NOT NULL REFERENCES station(station),
  date    TEXT NOT NULL,
  prcp    FLOAT,
  tobs    FLOAT NOT NULL
);
CREATE INDEX idx_measurement_date ON measurement(date);
`

// Station is a fixture row for the station table
type Station = models.Station

// Measurement is a fixture row for the measurement table. ID is assigned on insert; Prcp nil stores NULL.
type Measurement = models.Measurement

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// NewDB opens a private shared-cache in-memory sqlite database with Schema applied,
// seeds it, and wraps it in a database.DB. Everything is closed on test cleanup.
func NewDB(t *testing.T, stations []Station, measurements []Measurement) *database.DB {
	t.Helper()

	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	raw, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Keep one connection alive for the lifetime of the test; the in-memory
	// database disappears with its last connection.
	raw.SetMaxIdleConns(4)

	if _, err := raw.Exec(Schema); err != nil {
		raw.Close()
		t.Fatalf("exec schema: %v", err)
	}

	for _, s := range stations {
		if _, err := raw.Exec(
			`INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`,
			s.Station, s.Name, s.Latitude, s.Longitude, s.Elevation,
		); err != nil {
			raw.Close()
			t.Fatalf("insert station %s: %v", s.Station, err)
		}
	}
	for _, m := range measurements {
		if _, err := raw.Exec(
			`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`,
			m.Station, m.Date, m.Prcp, m.Tobs,
		); err != nil {
			raw.Close()
			t.Fatalf("insert measurement %s/%s: %v", m.Station, m.Date, err)
		}
	}

	db := database.New(raw, &database.Config{
		Driver:       "sqlite3",
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, logging.NewNopLogger(), metrics.NewCollector("climate_api_test", prometheus.NewRegistry()))

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	return db
}

// StationsFor returns one fixture station per distinct code in measurements
func StationsFor(measurements []Measurement) []Station {
	seen := make(map[string]bool)
	var stations []Station
	for _, m := range measurements {
		if seen[m.Station] {
			continue
		}
		seen[m.Station] = true
		stations = append(stations, Station{Station: m.Station, Name: "Station " + m.Station})
	}
	return stations
}
