package domain

import "time"

// EmailEntry is one recipient. Email addresses are unique across the store
// and kept lowercased.
type EmailEntry struct {
	ID          string
	CampaignID  string // optional
	Name        string
	Email       string
	ClientEmail string
	CreatedAt   time.Time
}
