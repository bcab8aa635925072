package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Sub-repositories hang off it so a
// Tx exposes exactly the same surface as the Store it came from.
type Store interface {
	Users() Users
	Sessions() Sessions
	RefreshTokens() RefreshTokens
	Campaigns() Campaigns
	Attachments() Attachments
	Entries() Entries

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser fails with ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error
	// GetSessionByHash returns only sessions that have not expired at now.
	GetSessionByHash(ctx context.Context, hash string, now time.Time) (domain.Session, error)
	// TouchSession records activity and slides the expiry.
	TouchSession(ctx context.Context, id string, seen, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)
	// RevokeRefreshToken reports false when the token was already revoked.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type Campaigns interface {
	CreateCampaign(ctx context.Context, c domain.Campaign) error
	// GetCampaign is scoped to the owner; other users' campaigns are ErrNotFound.
	GetCampaign(ctx context.Context, ownerID, id string) (domain.Campaign, error)
	// ListCampaigns returns newest first, without attachments.
	ListCampaigns(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	CountCampaigns(ctx context.Context, ownerID string) (int, error)
}

type Attachments interface {
	CreateAttachment(ctx context.Context, a domain.Attachment) error
	// ListAttachments returns metadata only; Data is left nil.
	ListAttachments(ctx context.Context, campaignID string) ([]domain.Attachment, error)
}

type Entries interface {
	// CreateEntry fails with ErrAlreadyExists when the email is stored.
	CreateEntry(ctx context.Context, e domain.EmailEntry) error
	// ExistingEmails returns the subset of emails already stored.
	ExistingEmails(ctx context.Context, emails []string) ([]string, error)
	CountEntries(ctx context.Context, campaignID string) (int, error)
}
