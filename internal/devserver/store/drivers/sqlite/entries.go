package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

type entriesRepo struct{ q querier }

// maxInArgs keeps IN lists under SQLite's bound-parameter limit.
const maxInArgs = 500

func (r *entriesRepo) CreateEntry(ctx context.Context, e domain.EmailEntry) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO email_entries (id, campaign_id, name, email, client_email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, mapStringNull(e.CampaignID), e.Name, e.Email, e.ClientEmail, utc(e.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *entriesRepo) ExistingEmails(ctx context.Context, emails []string) ([]string, error) {
	var out []string
	for start := 0; start < len(emails); start += maxInArgs {
		end := min(start+maxInArgs, len(emails))
		batch := emails[start:end]

		args := make([]any, len(batch))
		for i, e := range batch {
			args[i] = e
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		rows, err := r.q.QueryContext(ctx,
			`SELECT email FROM email_entries WHERE email IN (`+placeholders+`) ORDER BY email`, args...)
		if err != nil {
			return nil, err
		}
		found, err := collectStrings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (r *entriesRepo) CountEntries(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_entries WHERE campaign_id = ?`, campaignID).Scan(&n)
	return n, err
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
