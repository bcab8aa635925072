package sqlite

import (
	"context"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

type attachmentsRepo struct{ q querier }

func (r *attachmentsRepo) CreateAttachment(ctx context.Context, a domain.Attachment) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO attachments (id, campaign_id, filename, content_type, size, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CampaignID, a.Filename, a.ContentType, a.Size, a.Data, utc(a.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *attachmentsRepo) ListAttachments(ctx context.Context, campaignID string) ([]domain.Attachment, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, campaign_id, filename, content_type, size, created_at
		 FROM attachments WHERE campaign_id = ? ORDER BY created_at, id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.Filename, &a.ContentType, &a.Size, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
