package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/store"
	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/idx"
	"github.com/aussiebroadwan/emstore/pkg/recipients"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// DefaultMaxAttachmentSize caps a single uploaded file.
const DefaultMaxAttachmentSize = 10 << 20

// CampaignInput is a campaign creation request after decoding.
type CampaignInput struct {
	Name     string
	Subject  string
	Body     string
	Email    string
	Password string
	Provider string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	UseSSL   bool
	Notes    string
}

// Upload is one received attachment.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type CampaignService struct {
	Store  store.Store
	Sealer *cryptox.Sealer

	MaxAttachmentSize int64
}

func (s *CampaignService) maxAttachmentSize() int64 {
	if s.MaxAttachmentSize <= 0 {
		return DefaultMaxAttachmentSize
	}
	return s.MaxAttachmentSize
}

// Create stores a campaign owned by ownerID. The mailbox password is sealed
// before it reaches the database.
func (s *CampaignService) Create(ctx context.Context, ownerID string, in CampaignInput) (domain.Campaign, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var verr ValidationError
	if in.Name == "" {
		verr.add("name", "This field is required.")
	}
	switch {
	case in.Email == "":
		verr.add("email", "This field is required.")
	case !recipients.ValidEmail(in.Email):
		verr.add("email", "Enter a valid email address.")
	}
	if in.Password == "" {
		verr.add("password", "This field is required.")
	}
	for field, port := range map[string]int{"imap_port": in.IMAPPort, "smtp_port": in.SMTPPort} {
		if port < 0 || port > 65535 {
			verr.add(field, "Ensure this value is between 0 and 65535.")
		}
	}
	if err := verr.err(); err != nil {
		return domain.Campaign{}, err
	}

	sealed, err := s.Sealer.EncryptSecret([]byte(in.Password))
	if err != nil {
		return domain.Campaign{}, err
	}

	now := time.Now()
	c := domain.Campaign{
		ID:             idx.New().String(),
		OwnerID:        ownerID,
		Name:           in.Name,
		Subject:        in.Subject,
		Body:           in.Body,
		Email:          in.Email,
		Provider:       strings.TrimSpace(in.Provider),
		IMAPHost:       strings.TrimSpace(in.IMAPHost),
		IMAPPort:       in.IMAPPort,
		SMTPHost:       strings.TrimSpace(in.SMTPHost),
		SMTPPort:       in.SMTPPort,
		UseSSL:         in.UseSSL,
		Notes:          in.Notes,
		PasswordSealed: sealed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.Campaigns().CreateCampaign(ctx, c); err != nil {
		return domain.Campaign{}, err
	}

	slogx.FromContext(ctx).Info("campaign created",
		slog.String("campaign_id", c.ID), slog.String("owner_id", ownerID))
	return c, nil
}

// List returns the owner's campaigns, newest first, with attachment metadata.
func (s *CampaignService) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	list, err := s.Store.Campaigns().ListCampaigns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Attachments, err = s.Store.Attachments().ListAttachments(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Get returns one of the owner's campaigns. Campaigns of other users are
// reported as not found.
func (s *CampaignService) Get(ctx context.Context, ownerID, id string) (domain.Campaign, error) {
	c, err := s.Store.Campaigns().GetCampaign(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Campaign{}, ErrNotFound
		}
		return domain.Campaign{}, err
	}
	if c.Attachments, err = s.Store.Attachments().ListAttachments(ctx, c.ID); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// MailboxPassword unseals the stored mailbox password.
func (s *CampaignService) MailboxPassword(c domain.Campaign) (string, error) {
	plain, err := s.Sealer.DecryptSecret(c.PasswordSealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Count reports how many campaigns the owner has.
func (s *CampaignService) Count(ctx context.Context, ownerID string) (int, error) {
	return s.Store.Campaigns().CountCampaigns(ctx, ownerID)
}

// AddAttachments stores files against one of the owner's campaigns. Either
// every file is stored or none is.
func (s *CampaignService) AddAttachments(ctx context.Context, ownerID, campaignID string, uploads []Upload) ([]domain.Attachment, error) {
	if len(uploads) == 0 {
		var verr ValidationError
		verr.add("files", "No files were submitted.")
		return nil, &verr
	}
	limit := s.maxAttachmentSize()
	for _, u := range uploads {
		if int64(len(u.Data)) > limit {
			return nil, ErrTooLarge
		}
	}

	if _, err := s.Store.Campaigns().GetCampaign(ctx, ownerID, campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := time.Now()
	out := make([]domain.Attachment, 0, len(uploads))
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, u := range uploads {
			ct := u.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			a := domain.Attachment{
				ID:          idx.New().String(),
				CampaignID:  campaignID,
				Filename:    u.Filename,
				ContentType: ct,
				Size:        int64(len(u.Data)),
				Data:        u.Data,
				CreatedAt:   now,
			}
			if err := tx.Attachments().CreateAttachment(ctx, a); err != nil {
				return err
			}
			a.Data = nil
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
