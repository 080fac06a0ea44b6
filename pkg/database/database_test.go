package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

func newCollector() *metrics.Collector {
	return metrics.NewCollector("climate_api_test", prometheus.NewRegistry())
}

// writeDataset creates a sqlite file holding a small measurement table
func writeDataset(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hawaii.sqlite")
	raw, err := sqlx.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer raw.Close()

	stmts := []string{
		`CREATE TABLE measurement (id INTEGER PRIMARY KEY, station TEXT, date TEXT, prcp FLOAT, tobs FLOAT)`,
		`INSERT INTO measurement (station, date, prcp, tobs) VALUES ('USC001', '2017-01-01', NULL, 60)`,
		`INSERT INTO measurement (station, date, prcp, tobs) VALUES ('USC001', '2017-01-02', 0.5, 65)`,
	}
	for _, stmt := range stmts {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func TestBuildDSN(t *testing.T) {
	dataset := writeDataset(t)
	missing := filepath.Join(t.TempDir(), "missing.sqlite")

	tests := []struct {
		name    string
		cfg     *Config
		want    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "sqlite3 file opened read-only",
			cfg:  &Config{Driver: "sqlite3", Path: dataset},
			want: fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&mode=ro", dataset),
		},
		{
			name: "postgres key value",
			cfg: &Config{
				Driver:   "postgres",
				Host:     "db",
				Port:     5432,
				User:     "climate",
				Password: "secret",
				Database: "climate",
				SSLMode:  "disable",
			},
			want: "host=db port=5432 user=climate password=secret dbname=climate sslmode=disable",
		},
		{
			name: "dsn overrides driver fields",
			cfg:  &Config{Driver: "postgres", DSN: "postgres://climate@db/climate", Host: "ignored"},
			want: "postgres://climate@db/climate",
		},
		{
			name: "dsn skips sqlite file check",
			cfg:  &Config{Driver: "sqlite3", DSN: "file::memory:", Path: missing},
			want: "file::memory:",
		},
		{
			name: "sqlite3 missing file",
			cfg:  &Config{Driver: "sqlite3", Path: missing},
			wantErr: func(t *testing.T, err error) {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("error = %v, want fs.ErrNotExist", err)
				}
			},
		},
		{
			name: "unsupported driver",
			cfg:  &Config{Driver: "mysql"},
			wantErr: func(t *testing.T, err error) {
				if err == nil || !strings.Contains(err.Error(), `unsupported database driver "mysql"`) {
					t.Errorf("error = %v, want unsupported driver", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("buildDSN() = %q, want error", got)
				}
				tt.wantErr(t, err)
				return
			}
			if err != nil {
				t.Fatalf("buildDSN() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "missing sqlite file", cfg: &Config{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "nope.sqlite")}},
		{name: "unsupported driver", cfg: &Config{Driver: "mysql", Path: "ignored"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.cfg, logging.NewNopLogger(), newCollector())
			if err == nil {
				db.Close()
				t.Fatal("Open() succeeded, want error")
			}
			if db != nil {
				t.Errorf("Open() returned a DB alongside error %v", err)
			}
		})
	}
}

func TestOpen_SqliteIsReadOnly(t *testing.T) {
	db, err := Open(&Config{
		Driver:       "sqlite3",
		Path:         writeDataset(t),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logging.NewNopLogger(), newCollector())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	var latest string
	err = db.WithConn(ctx, func(conn *Conn) error {
		return conn.GetContext(ctx, "most_recent_date", &latest, `SELECT MAX(date) FROM measurement`)
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if latest != "2017-01-02" {
		t.Errorf("MAX(date) = %q, want 2017-01-02", latest)
	}

	if _, err := db.db.ExecContext(ctx, `DELETE FROM measurement`); err == nil {
		t.Error("DELETE succeeded on a read-only dataset")
	}

	if db.Driver() != "sqlite3" {
		t.Errorf("Driver() = %q, want sqlite3", db.Driver())
	}
}

func TestWithConn_ReleasesConnection(t *testing.T) {
	raw, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	collector := newCollector()
	db := New(raw, &Config{Driver: "sqlite3", MaxOpenConns: 1, MaxIdleConns: 1}, logging.NewNopLogger(), collector)
	defer db.Close()

	tests := []struct {
		name string
		fn   func(ctx context.Context, conn *Conn) error
	}{
		{
			name: "get on missing table",
			fn: func(ctx context.Context, conn *Conn) error {
				var n int
				return conn.GetContext(ctx, "missing_get", &n, `SELECT COUNT(*) FROM missing_table`)
			},
		},
		{
			name: "select on missing table",
			fn: func(ctx context.Context, conn *Conn) error {
				var rows []string
				return conn.SelectContext(ctx, "missing_select", &rows, `SELECT name FROM missing_table`)
			},
		},
		{
			name: "callback error",
			fn: func(context.Context, *Conn) error {
				return errors.New("callback failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				err := db.WithConn(ctx, func(conn *Conn) error { return tt.fn(ctx, conn) })
				cancel()
				if err == nil {
					t.Fatalf("call %d: WithConn() succeeded, want error", i)
				}
			}

			if inUse := db.db.Stats().InUse; inUse != 0 {
				t.Errorf("InUse = %d after failed calls, want 0", inUse)
			}

			// With a single-connection pool this times out if a connection leaked.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			var one int
			err := db.WithConn(ctx, func(conn *Conn) error {
				return conn.GetContext(ctx, "select_one", &one, `SELECT 1`)
			})
			if err != nil || one != 1 {
				t.Fatalf("follow-up query = %d, %v; want 1, nil", one, err)
			}
		})
	}

	if got := promtestutil.ToFloat64(collector.DBErrorsTotal.WithLabelValues("get_error")); got != 5 {
		t.Errorf("db_errors_total{get_error} = %v, want 5", got)
	}
	if got := promtestutil.ToFloat64(collector.DBErrorsTotal.WithLabelValues("select_error")); got != 5 {
		t.Errorf("db_errors_total{select_error} = %v, want 5", got)
	}
}

func TestWithConn_CancelledContext(t *testing.T) {
	raw, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	collector := newCollector()
	db := New(raw, &Config{Driver: "sqlite3", MaxOpenConns: 1, MaxIdleConns: 1}, logging.NewNopLogger(), collector)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = db.WithConn(ctx, func(*Conn) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithConn() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("callback ran with a cancelled context")
	}
	if got := promtestutil.ToFloat64(collector.DBErrorsTotal.WithLabelValues("conn_error")); got != 0 {
		t.Errorf("db_errors_total{conn_error} = %v, want 0", got)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driver: "sqlite3", want: "SELECT tobs FROM measurement WHERE station = ? AND date >= ?"},
		{driver: "postgres", want: "SELECT tobs FROM measurement WHERE station = $1 AND date >= $2"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db := &DB{db: sqlx.NewDb(nil, tt.driver)}
			got := db.Rebind("SELECT tobs FROM measurement WHERE station = ? AND date >= ?")
			if got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	raw, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db := New(raw, &Config{Driver: "sqlite3", MaxOpenConns: 1, MaxIdleConns: 1}, logging.NewNopLogger(), newCollector())

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() on open db = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close succeeded, want error")
	}
}
