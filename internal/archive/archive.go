// Package archive persists terminal generation sessions to Postgres for
// the surrounding CRM application. The session engine never reads its own
// state back from here; the in-memory store stays the source of truth
// for a session's lifetime.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/session"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// ArchiveSession writes a terminal session and its leads in one
// transaction. Tables: leadgen_sessions, leadgen_leads,
// leadgen_provider_usage.
func (s *Store) ArchiveSession(ctx context.Context, sess session.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO leadgen_sessions (id, status, depth, target_role, industry, location, keywords,
			platform, include_email, include_phone, error_message, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		sess.ID, string(sess.Status), string(sess.Params.Depth), sess.Params.TargetRole,
		sess.Params.Industry, sess.Params.Location, sess.Params.Keywords, sess.Params.Platform,
		sess.Params.IncludeEmail, sess.Params.IncludePhone, nullable(sess.Error),
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, l := range sess.Leads {
		_, err = tx.Exec(ctx, `
			INSERT INTO leadgen_leads (id, session_id, name, title, company, email, phone, location,
				source_url, confidence_score, tags, source, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			l.ID, sess.ID, l.Name, l.Title, l.Company, l.Email, l.Phone, l.Location,
			nullable(l.SourceURL), l.ConfidenceScore, l.Tags, l.Source, l.Status, l.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
	}

	for _, pid := range sess.ProvidersUsed {
		_, err = tx.Exec(ctx, `
			INSERT INTO leadgen_provider_usage (session_id, provider_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			sess.ID, pid,
		)
		if err != nil {
			return fmt.Errorf("insert provider usage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SessionLeads returns the archived leads of one session, in insertion
// order. Used by the surrounding application, not the engine itself.
func (s *Store) SessionLeads(ctx context.Context, sessionID string) ([]lead.Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, title, company, email, phone, location, source_url,
			confidence_score, tags, source, status, created_at
		FROM leadgen_leads
		WHERE session_id = $1
		ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []lead.Lead
	for rows.Next() {
		var l lead.Lead
		var sourceURL *string
		if err := rows.Scan(&l.ID, &l.Name, &l.Title, &l.Company, &l.Email, &l.Phone, &l.Location,
			&sourceURL, &l.ConfidenceScore, &l.Tags, &l.Source, &l.Status, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if sourceURL != nil {
			l.SourceURL = *sourceURL
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
