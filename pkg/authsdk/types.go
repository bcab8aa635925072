package authsdk

import "time"

// ============================================================================
// Credentials
// ============================================================================

// CSRFToken is the anti-forgery value mirrored into the CSRF header.
type CSRFToken struct {
	Value     string
	FetchedAt time.Time
}

// IsZero reports whether no token is held.
func (t CSRFToken) IsZero() bool { return t.Value == "" }

// TokenPair is the bearer credential.
type TokenPair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token,omitempty"`
}

// IsZero reports whether neither token is held.
func (p TokenPair) IsZero() bool { return p.Access == "" && p.Refresh == "" }

// ============================================================================
// Auth
// ============================================================================

// User is the authenticated principal.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the full name when known, else the username.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// CSRFResponse is returned by the token endpoint.
type CSRFResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of the register endpoint.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// AuthResponse is returned by login and register. The tokens are only
// present when the server runs the bearer scheme.
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the new access token, and a rotated refresh token
// when the server rotates them.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutRequest lets the server revoke the refresh token in bearer mode.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// UserResponse is returned by the current-user endpoint.
type UserResponse struct {
	User *User `json:"user"`
}

// SessionResponse is returned by the session probe.
type SessionResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Campaigns
// ============================================================================

// CampaignRequest creates a campaign. Password is the mailbox password and
// is never returned by the server.
type CampaignRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider,omitempty"`
	IMAPHost string `json:"imap_host,omitempty"`
	IMAPPort int    `json:"imap_port,omitempty"`
	SMTPHost string `json:"smtp_host,omitempty"`
	SMTPPort int    `json:"smtp_port,omitempty"`
	UseSSL   bool   `json:"use_ssl"`
	Notes    string `json:"notes,omitempty"`
}

// Campaign is a stored campaign.
type Campaign struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Subject     string       `json:"subject,omitempty"`
	Body        string       `json:"body,omitempty"`
	Email       string       `json:"email"`
	Provider    string       `json:"provider,omitempty"`
	IMAPHost    string       `json:"imap_host,omitempty"`
	IMAPPort    int          `json:"imap_port,omitempty"`
	SMTPHost    string       `json:"smtp_host,omitempty"`
	SMTPPort    int          `json:"smtp_port,omitempty"`
	UseSSL      bool         `json:"use_ssl"`
	Notes       string       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
}

// CampaignSummary answers "does this user have any campaigns yet".
type CampaignSummary struct {
	HasCampaigns bool `json:"has_campaigns"`
	Count        int  `json:"campaign_count"`
}

// Attachment describes an uploaded campaign file.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"original_filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"file_size"`
}

// ============================================================================
// Email entries
// ============================================================================

// EmailEntryRequest adds one recipient.
type EmailEntryRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ClientEmail string `json:"client_email"`
	CampaignID  string `json:"campaign_id,omitempty"`
}

// EntryResult acknowledges a single entry.
type EntryResult struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	Status  string `json:"status"`
}

// BulkResult summarises a bulk upload. A 207 response means some entries
// already existed and were skipped.
type BulkResult struct {
	Created         int      `json:"created"`
	Duplicates      int      `json:"duplicates"`
	DuplicateEmails []string `json:"duplicate_emails"`
	TotalProcessed  int      `json:"total_processed"`
	Status          string   `json:"status"`
	Message         string   `json:"message,omitempty"`
}

// Entry statuses reported by the server.
const (
	EntryStatusCreated            = "created"
	EntryStatusCompleted          = "completed"
	EntryStatusDuplicate          = "duplicate"
	EntryStatusDuplicateInRequest = "duplicate_in_request"
)

// ============================================================================
// Health Check Types
// ============================================================================

// HealthResponse represents the response from health check endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks contains individual component health checks.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
