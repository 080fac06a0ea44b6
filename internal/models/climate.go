package models

import (
	"fmt"
	"time"
)

// DateLayout is the only accepted date format, both in the store and in request paths.
const DateLayout = "2006-01-02"

// Station represents a row of the station table.
// Geographic attributes are optional reference data.
type Station struct {
	ID        int64    `json:"-" db:"id"`
	Station   string   `json:"station" db:"station"`
	Name      string   `json:"name" db:"name"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	Elevation *float64 `json:"elevation,omitempty" db:"elevation"`
}

// Measurement represents a row of the measurement table.
// Prcp is nil when the station reported no precipitation value, which is not the same as zero.
type Measurement struct {
	ID      int64    `json:"id" db:"id"`
	Station string   `json:"station" db:"station"`
	Date    string   `json:"date" db:"date"`
	Prcp    *float64 `json:"prcp" db:"prcp"`
	Tobs    float64  `json:"tobs" db:"tobs"`
}

// PrecipitationReading is the (date, prcp) projection of a measurement.
type PrecipitationReading struct {
	Date string   `db:"date"`
	Prcp *float64 `db:"prcp"`
}

// StationName is the (station, name) projection of a station.
type StationName struct {
	Station string `db:"station"`
	Name    string `db:"name"`
}

// TemperatureObservation is the (date, tobs) projection of a measurement.
type TemperatureObservation struct {
	Date string  `db:"date"`
	Tobs float64 `db:"tobs"`
}

// TemperatureSummary holds MAX/MIN/AVG of tobs over a date range.
// All three are nil when the range matched no rows.
type TemperatureSummary struct {
	Max *float64 `db:"temp_max"`
	Min *float64 `db:"temp_min"`
	Avg *float64 `db:"temp_avg"`
}

// Empty reports whether the aggregate was computed over zero rows.
func (s TemperatureSummary) Empty() bool {
	return s.Max == nil && s.Min == nil && s.Avg == nil
}

// TemperatureSummaryResponse is the JSON shape returned by the start and start/end routes.
type TemperatureSummaryResponse struct {
	StartDate string   `json:"start_date"`
	EndDate   *string  `json:"end_date"`
	TempMax   *float64 `json:"temp_max"`
	TempMin   *float64 `json:"temp_min"`
	TempAvg   *float64 `json:"temp_avg"`
}

// ParseDate parses a YYYY-MM-DD path parameter.
// field names the parameter in the returned DateParseError.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &DateParseError{
			Field: field,
			Value: value,
			Err:   err,
		}
	}
	return t, nil
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateParseError reports a path parameter that is not a valid YYYY-MM-DD date.
type DateParseError struct {
	Field string
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid %s %q, expected YYYY-MM-DD", e.Field, e.Value)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// IsTransient returns false as a malformed date never becomes valid on retry
func (e *DateParseError) IsTransient() bool {
	return false
}
