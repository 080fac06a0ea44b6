package models

import (
	"errors"
	"testing"
	"time"
)

// TestParseDate tests path parameter date parsing
func TestParseDate(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantErr    bool
		checkValue func(*testing.T, time.Time)
	}{
		{
			name:  "valid date",
			value: "2017-01-01",
			checkValue: func(t *testing.T, got time.Time) {
				want := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
				if !got.Equal(want) {
					t.Errorf("ParseDate() = %v, want %v", got, want)
				}
			},
		},
		{
			name:  "leap day",
			value: "2016-02-29",
			checkValue: func(t *testing.T, got time.Time) {
				if got.Month() != time.February || got.Day() != 29 {
					t.Errorf("ParseDate() = %v, want 2016-02-29", got)
				}
			},
		},
		{name: "month out of range", value: "2017-13-40", wantErr: true},
		{name: "day out of range", value: "2017-02-30", wantErr: true},
		{name: "not a date", value: "not-a-date", wantErr: true},
		{name: "single digit month", value: "2017-1-05", wantErr: true},
		{name: "trailing text", value: "2017-01-01T00:00:00", wantErr: true},
		{name: "compact format", value: "20170101", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate("start", tt.value)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				var dpe *DateParseError
				if !errors.As(err, &dpe) {
					t.Fatalf("error type = %T, want *DateParseError", err)
				}
				if dpe.Field != "start" || dpe.Value != tt.value {
					t.Errorf("DateParseError = %+v, want field start value %q", dpe, tt.value)
				}
				return
			}

			if tt.checkValue != nil {
				tt.checkValue(t, got)
			}
			if FormatDate(got) != tt.value {
				t.Errorf("FormatDate() = %v, want %v", FormatDate(got), tt.value)
			}
		})
	}
}

// TestDateParseError tests error formatting and classification
func TestDateParseError(t *testing.T) {
	_, err := ParseDate("end", "2017-13-40")
	if err == nil {
		t.Fatal("expected error")
	}

	want := `invalid end "2017-13-40", expected YYYY-MM-DD`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dpe *DateParseError
	if !errors.As(err, &dpe) {
		t.Fatalf("error type = %T, want *DateParseError", err)
	}
	if dpe.IsTransient() {
		t.Error("DateParseError should not be transient")
	}
	if errors.Unwrap(err) == nil {
		t.Error("DateParseError should wrap the underlying time.Parse error")
	}
}

func TestTemperatureSummary_Empty(t *testing.T) {
	v := 60.0
	if !(TemperatureSummary{}).Empty() {
		t.Error("zero summary should be empty")
	}
	if (TemperatureSummary{Max: &v, Min: &v, Avg: &v}).Empty() {
		t.Error("populated summary should not be empty")
	}
}
