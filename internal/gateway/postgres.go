package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sony/gobreaker"
)

// Row is one result row from a read query, column name to driver value.
type Row map[string]interface{}

// RunGateway executes read/write SQL against the backing run database.
// The write path is wrapped in a circuit breaker: once it trips,
// ExecuteWrite fails fast with a connection-lost-classified error so the
// role controller can treat repeated trips as a demotion trigger.
type RunGateway struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker
}

// NewRunGateway wraps db. name is used as the breaker's identity in logs/metrics.
func NewRunGateway(db *sql.DB, name string) *RunGateway {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &RunGateway{db: db, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// ExecuteRead runs query and returns its rows.
func (g *RunGateway) ExecuteRead(ctx context.Context, query string) ([]Row, error) {
	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ExecuteWrite runs query through the circuit breaker and returns the
// number of rows affected.
func (g *RunGateway) ExecuteWrite(ctx context.Context, query string) (int64, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		res, err := g.db.ExecContext(ctx, query)
		if err != nil {
			return nil, classify(err)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, &Error{Kind: KindConnectionLost, Err: err}
		}
		return 0, err
	}
	affected, err := result.(sql.Result).RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return affected, nil
}

// BreakerOpen reports whether the write breaker is currently tripped —
// the role controller's persistent-failure demotion trigger.
func (g *RunGateway) BreakerOpen() bool {
	return g.breaker.State() == gobreaker.StateOpen
}

// CheckConnectivity implements telemetry.ConnectivityChecker.
func (g *RunGateway) CheckConnectivity() error {
	return g.db.Ping()
}

// LastUpdate reads the timestamp of the most recent successful write
// from table/column, the negotiation tiebreak's durable input.
func (g *RunGateway) LastUpdate(ctx context.Context, table, column string) (time.Time, error) {
	var t time.Time
	query := fmt.Sprintf("SELECT max(%s) FROM %s", column, table)
	if err := g.db.QueryRowContext(ctx, query).Scan(&t); err != nil {
		return time.Time{}, classify(err)
	}
	return t, nil
}

// classify maps a driver error to the gateway's Kind taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return &Error{Kind: KindConnectionLost, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return &Error{Kind: KindConnectionLost, Err: err}
		case "23": // integrity constraint violation
			return &Error{Kind: KindConstraintViolation, Err: err}
		case "42": // syntax error or access rule violation
			return &Error{Kind: KindSyntax, Err: err}
		}
	}
	return &Error{Kind: KindConnectionLost, Err: err}
}
