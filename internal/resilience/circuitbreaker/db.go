package circuitbreaker

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// DBCircuitBreaker wraps a database connection with circuit breaker
// protection so a dead lesson store does not stall every scheduler fire
// on connection timeouts. It satisfies the postgres.Querier interface.
type DBCircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
	db *sql.DB
}

// dbSettings opens after 5 consecutive failures and probes again after
// 30 seconds with up to 3 half-open requests.
func dbSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "lesson-store",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("database circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
}

// NewDBCircuitBreaker wraps db with circuit breaker protection.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return &DBCircuitBreaker{
		cb: gobreaker.NewCircuitBreaker(dbSettings()),
		db: db,
	}
}

// QueryContext executes a query with circuit breaker protection.
// If the circuit is open, it returns gobreaker.ErrOpenState without
// hitting the database.
func (dcb *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

// ExecContext executes a statement with circuit breaker protection.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

// QueryRowContext executes a single-row query. sql.Row defers errors to
// Scan, so breaker accounting here only covers the open-state fast path.
func (dcb *DBCircuitBreaker) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if dcb.cb.State() == gobreaker.StateOpen {
		// Scan on this row reports the closed-connection error.
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return dcb.db.QueryRowContext(ctx, query, args...)
	}
	return dcb.db.QueryRowContext(ctx, query, args...)
}

// IsOpen reports whether the database breaker is currently open.
func (dcb *DBCircuitBreaker) IsOpen() bool {
	return dcb.cb.State() == gobreaker.StateOpen
}
