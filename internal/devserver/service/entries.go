package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/store"
	"github.com/aussiebroadwan/emstore/pkg/idx"
	"github.com/aussiebroadwan/emstore/pkg/recipients"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// EntryInput is one recipient as submitted.
type EntryInput struct {
	Name        string
	Email       string
	ClientEmail string
	CampaignID  string
}

// BulkOutcome summarises a bulk submission.
type BulkOutcome struct {
	Created         int
	DuplicateEmails []string
	TotalProcessed  int
}

type EntryService struct {
	Store store.Store
}

// Add stores a single recipient. An address already stored fails with
// ErrDuplicate.
func (s *EntryService) Add(ctx context.Context, ownerID string, in EntryInput) (domain.EmailEntry, error) {
	e, err := s.prepare(ctx, ownerID, 0, in)
	if err != nil {
		return domain.EmailEntry{}, err
	}
	if err := s.Store.Entries().CreateEntry(ctx, e); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.EmailEntry{}, ErrDuplicate
		}
		return domain.EmailEntry{}, err
	}
	return e, nil
}

// AddBulk stores recipients, skipping addresses already on file. When the
// submission repeats an address nothing is stored and a
// *DuplicateInRequestError is returned.
func (s *EntryService) AddBulk(ctx context.Context, ownerID, campaignID string, ins []EntryInput) (BulkOutcome, error) {
	if len(ins) == 0 {
		var verr ValidationError
		verr.add("entries", "At least one entry is required.")
		return BulkOutcome{}, &verr
	}

	entries := make([]domain.EmailEntry, 0, len(ins))
	seen := make(map[string]bool, len(ins))
	var repeated []string
	for i, in := range ins {
		if in.CampaignID == "" {
			in.CampaignID = campaignID
		}
		e, err := s.prepare(ctx, ownerID, i+1, in)
		if err != nil {
			return BulkOutcome{}, err
		}
		if seen[e.Email] {
			if !slices.Contains(repeated, e.Email) {
				repeated = append(repeated, e.Email)
			}
			continue
		}
		seen[e.Email] = true
		entries = append(entries, e)
	}
	if len(repeated) > 0 {
		return BulkOutcome{}, &DuplicateInRequestError{Emails: repeated}
	}

	emails := make([]string, len(entries))
	for i, e := range entries {
		emails[i] = e.Email
	}

	out := BulkOutcome{TotalProcessed: len(ins), DuplicateEmails: []string{}}
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Entries().ExistingEmails(ctx, emails)
		if err != nil {
			return err
		}
		skip := make(map[string]bool, len(existing))
		for _, e := range existing {
			skip[e] = true
		}

		for _, e := range entries {
			if skip[e.Email] {
				out.DuplicateEmails = append(out.DuplicateEmails, e.Email)
				continue
			}
			if err := tx.Entries().CreateEntry(ctx, e); err != nil {
				return err
			}
			out.Created++
		}
		return nil
	})
	if err != nil {
		return BulkOutcome{}, err
	}

	slogx.FromContext(ctx).Info("email entries stored",
		slog.Int("created", out.Created), slog.Int("duplicates", len(out.DuplicateEmails)))
	return out, nil
}

// prepare normalises and validates one entry. row is 1-based for bulk input
// and 0 for a single entry.
func (s *EntryService) prepare(ctx context.Context, ownerID string, row int, in EntryInput) (domain.EmailEntry, error) {
	e := domain.EmailEntry{
		ID:          idx.New().String(),
		CampaignID:  strings.TrimSpace(in.CampaignID),
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		ClientEmail: strings.ToLower(strings.TrimSpace(in.ClientEmail)),
		CreatedAt:   time.Now(),
	}

	field := func(name string) string {
		if row == 0 {
			return name
		}
		return "entries[" + strconv.Itoa(row) + "]." + name
	}

	var verr ValidationError
	if e.Name == "" {
		verr.add(field("name"), "This field is required.")
	}
	switch {
	case e.Email == "":
		verr.add(field("email"), "This field is required.")
	case !recipients.ValidEmail(e.Email):
		verr.add(field("email"), "Enter a valid email address.")
	}
	if e.ClientEmail != "" && !recipients.ValidEmail(e.ClientEmail) {
		verr.add(field("client_email"), "Enter a valid email address.")
	}
	if err := verr.err(); err != nil {
		return domain.EmailEntry{}, err
	}

	if e.CampaignID != "" {
		if _, err := s.Store.Campaigns().GetCampaign(ctx, ownerID, e.CampaignID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				verr.add(field("campaign_id"), "Unknown campaign.")
				return domain.EmailEntry{}, &verr
			}
			return domain.EmailEntry{}, err
		}
	}
	return e, nil
}
