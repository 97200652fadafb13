package leads

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends leads to a Postgres table. It is selected at startup
// when DATABASE_URL is configured; the NDJSON file store is the default.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS leads (
//	    id              UUID PRIMARY KEY,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    business_name   TEXT NOT NULL,
//	    caller_phone    TEXT,
//	    caller_name     TEXT,
//	    service_address TEXT,
//	    issue           TEXT,
//	    preferred_time  TEXT,
//	    notes           TEXT,
//	    urgency         TEXT NOT NULL,
//	    source          TEXT NOT NULL
//	);
//
// Insert-only; the table carries no update path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertLeadSQL = `
INSERT INTO leads (id, created_at, business_name, caller_phone, caller_name, service_address, issue, preferred_time, notes, urgency, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *PostgresStore) Append(ctx context.Context, l Lead) error {
	_, err := s.db.ExecContext(ctx, insertLeadSQL,
		l.ID,
		l.CreatedAt,
		l.BusinessName,
		nullable(l.CallerPhone),
		nullable(l.CallerName),
		nullable(l.ServiceAddress),
		nullable(l.Issue),
		nullable(l.PreferredTime),
		nullable(l.Notes),
		string(l.Urgency),
		l.Source,
	)
	if err != nil {
		return fmt.Errorf("leads: insert lead %s: %w", l.ID, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
