package db

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const pingTimeout = 5 * time.Second

var errNoPool = errors.New("no database pool configured")

// poolUsage is the connection-pool snapshot reported by /health/db.
type poolUsage struct {
	Open        int32  `json:"open"`
	InUse       int32  `json:"in_use"`
	Idle        int32  `json:"idle"`
	Limit       int32  `json:"limit"`
	Acquired    int64  `json:"acquired_total"`
	AcquireWait string `json:"acquire_wait"`
}

type dbHealth struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *poolUsage `json:"pool,omitempty"`
}

// HealthHandler pings the database and reports pool usage. Ping failures are
// logged; the response only says the database is unreachable.
func HealthHandler(pool *pgxpool.Pool, logger zerolog.Logger) echo.HandlerFunc {
	ping := func(ctx context.Context) error {
		if pool == nil {
			return errNoPool
		}
		return pool.Ping(ctx)
	}
	usage := func() *poolUsage {
		if pool == nil {
			return nil
		}
		s := pool.Stat()
		return &poolUsage{
			Open:        s.TotalConns(),
			InUse:       s.AcquiredConns(),
			Idle:        s.IdleConns(),
			Limit:       s.MaxConns(),
			Acquired:    s.AcquireCount(),
			AcquireWait: s.AcquireDuration().String(),
		}
	}
	return checkDB(ping, usage, logger)
}

func checkDB(ping func(context.Context) error, usage func() *poolUsage, logger zerolog.Logger) echo.HandlerFunc {
	logger = logger.With().Str("component", "db_health").Logger()

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			logger.Error().Err(err).Msg("database ping failed")
			return c.JSON(http.StatusServiceUnavailable, dbHealth{
				Status: "unhealthy",
				Error:  "database unreachable",
				Pool:   usage(),
			})
		}
		return c.JSON(http.StatusOK, dbHealth{Status: "healthy", Pool: usage()})
	}
}
