package sqlite

import (
	"context"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

type campaignsRepo struct{ q querier }

const campaignColumns = `id, owner_id, name, subject, body, email, password_sealed, provider,
	imap_host, imap_port, smtp_host, smtp_port, use_ssl, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Subject, &c.Body, &c.Email, &c.PasswordSealed, &c.Provider,
		&c.IMAPHost, &c.IMAPPort, &c.SMTPHost, &c.SMTPPort, &c.UseSSL, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *campaignsRepo) CreateCampaign(ctx context.Context, c domain.Campaign) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.Subject, c.Body, c.Email, c.PasswordSealed, c.Provider,
		c.IMAPHost, c.IMAPPort, c.SMTPHost, c.SMTPPort, c.UseSSL, c.Notes,
		utc(c.CreatedAt), utc(c.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *campaignsRepo) GetCampaign(ctx context.Context, ownerID, id string) (domain.Campaign, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE owner_id = ? AND id = ?`, ownerID, id)
	c, err := scanCampaign(row)
	if err != nil {
		return domain.Campaign{}, mapNotFound(err)
	}
	return c, nil
}

func (r *campaignsRepo) ListCampaigns(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *campaignsRepo) CountCampaigns(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}
