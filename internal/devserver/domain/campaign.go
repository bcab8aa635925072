package domain

import "time"

// Campaign is an outreach mailbox configuration owned by one user.
type Campaign struct {
	ID       string
	OwnerID  string
	Name     string
	Subject  string
	Body     string
	Email    string
	Provider string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	UseSSL   bool
	Notes    string

	// PasswordSealed is the mailbox password encrypted with the server's
	// master key. It never leaves the service layer.
	PasswordSealed []byte

	Attachments []Attachment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Attachment struct {
	ID          string
	CampaignID  string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
	CreatedAt   time.Time
}
