package health

import (
	"context"
	"database/sql"
	"time"

	"docfill-backend/internal/shared/storage/db"
)

// Database states reported by Status.
const (
	DBUp       = "up"
	DBDown     = "down"
	DBDisabled = "memory"
)

// Service encapsulates health-related checks.
type Service struct {
	DB          *sql.DB
	PingTimeout time.Duration
}

// NewService constructs a new health service. A nil database reports the in-memory mode.
func NewService(database *sql.DB) *Service {
	return &Service{DB: database, PingTimeout: 2 * time.Second}
}

// Report is the health payload.
type Report struct {
	OK bool   `json:"ok"`
	DB string `json:"db"`
}

// Status pings the database when one is configured.
func (s *Service) Status(ctx context.Context) Report {
	if s == nil || s.DB == nil {
		return Report{OK: true, DB: DBDisabled}
	}
	if err := db.Ping(ctx, s.DB, s.PingTimeout); err != nil {
		return Report{OK: false, DB: DBDown}
	}
	return Report{OK: true, DB: DBUp}
}
