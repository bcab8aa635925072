package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/store"
	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
	"github.com/aussiebroadwan/emstore/pkg/idx"
	"github.com/aussiebroadwan/emstore/pkg/jwtx"
	"github.com/aussiebroadwan/emstore/pkg/recipients"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

const (
	DefaultSessionTTL = 14 * 24 * time.Hour
	MinPasswordLength = 8
	MaxUsernameLength = 150
)

// RegisterInput is a registration request after decoding.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Password2 string
	FirstName string
	LastName  string
}

// TokenPair is a freshly issued bearer credential.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	Store      store.Store
	Hasher     *cryptox.PasswordHasher
	KeyManager *jwtx.KeyManager

	SessionTTL time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) sessionTTL() time.Duration {
	if s.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return s.SessionTTL
}

// Register validates and stores a new user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var verr ValidationError
	switch {
	case in.Username == "":
		verr.add("username", "This field is required.")
	case utf8.RuneCountInString(in.Username) > MaxUsernameLength:
		verr.add("username", "Ensure this field has no more than 150 characters.")
	}
	switch {
	case in.Email == "":
		verr.add("email", "This field is required.")
	case !recipients.ValidEmail(in.Email):
		verr.add("email", "Enter a valid email address.")
	}
	switch {
	case in.Password == "":
		verr.add("password", "This field is required.")
	case utf8.RuneCountInString(in.Password) < MinPasswordLength:
		verr.add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if in.Password != in.Password2 {
		verr.add("password", "Password fields didn't match.")
	}
	if err := verr.err(); err != nil {
		return domain.User{}, err
	}

	if taken, err := s.Store.Users().UsernameExists(ctx, in.Username); err != nil {
		return domain.User{}, err
	} else if taken {
		verr.add("username", "A user with that username already exists.")
	}
	if taken, err := s.Store.Users().EmailExists(ctx, in.Email); err != nil {
		return domain.User{}, err
	} else if taken {
		verr.add("email", "A user with that email already exists.")
	}
	if err := verr.err(); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			verr.add("username", "A user with that username already exists.")
			return domain.User{}, &verr
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Authenticate checks a username and password.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("login failed", slog.String("user_id", u.ID))
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser fetches a user by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// ============================================================================
// Cookie sessions
// ============================================================================

// StartSession creates a session for the user and returns the opaque cookie
// value. Only its fingerprint is stored.
func (s *AuthService) StartSession(ctx context.Context, userID string) (string, time.Time, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	sess := domain.Session{
		ID:         idx.New().String(),
		UserID:     userID,
		TokenHash:  cryptox.FingerprintToken(token),
		ExpiresAt:  now.Add(s.sessionTTL()),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return "", time.Time{}, err
	}
	return token, sess.ExpiresAt, nil
}

// LookupSession resolves a session cookie to its principal and slides the
// expiry forward. It satisfies httpx.SessionLookup.
func (s *AuthService) LookupSession(ctx context.Context, token string) (httpx.Principal, error) {
	now := s.now()
	sess, err := s.Store.Sessions().GetSessionByHash(ctx, cryptox.FingerprintToken(token), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.Principal{}, httpx.ErrNoSession
		}
		return httpx.Principal{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httpx.Principal{}, httpx.ErrNoSession
		}
		return httpx.Principal{}, err
	}

	if err := s.Store.Sessions().TouchSession(ctx, sess.ID, now, now.Add(s.sessionTTL())); err != nil {
		slogx.FromContext(ctx).Warn("failed to extend session", slog.Any("error", err))
	}

	return httpx.Principal{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Method:    httpx.MethodSession,
		SessionID: sess.ID,
	}, nil
}

// EndSession deletes a session. Unknown sessions are ignored.
func (s *AuthService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// ============================================================================
// Bearer tokens
// ============================================================================

// IssueTokens signs an access token and stores a new refresh token.
func (s *AuthService) IssueTokens(ctx context.Context, u domain.User) (TokenPair, error) {
	var pair TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issue(ctx, tx, u, s.now())
		return err
	})
	return pair, err
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated revokes every refresh token the user holds.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	refresh = strings.TrimSpace(refresh)
	if refresh == "" {
		return TokenPair{}, ErrInvalidRefresh
	}

	now := s.now()
	fp := cryptox.FingerprintToken(refresh)
	l := slogx.FromContext(ctx)

	var (
		pair  TokenPair
		reuse string
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if now.After(rt.ExpiresAt) {
			return ErrInvalidRefresh
		}
		if rt.Revoked {
			reuse = rt.UserID
			return ErrInvalidRefresh
		}

		revoked, err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp)
		if err != nil {
			return err
		}
		if !revoked {
			return ErrInvalidRefresh
		}

		u, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		pair, err = s.issue(ctx, tx, u, now)
		return err
	})

	if reuse != "" {
		l.Warn("refresh token reuse detected", slog.String("user_id", reuse))
		if rerr := s.Store.RefreshTokens().RevokeUserRefreshTokens(ctx, reuse); rerr != nil {
			l.Error("failed to revoke refresh tokens", slog.Any("error", rerr))
		}
	}
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// RevokeRefresh revokes a refresh token on logout. Unknown tokens are ignored.
func (s *AuthService) RevokeRefresh(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	_, err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(refresh))
	return err
}

func (s *AuthService) issue(ctx context.Context, tx store.Tx, u domain.User, now time.Time) (TokenPair, error) {
	accessTTL := s.AccessTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	access, err := s.KeyManager.Issue(u.ID, u.Username, u.Email, accessTTL, now)
	if err != nil {
		return TokenPair{}, err
	}

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return TokenPair{}, err
	}

	refreshTTL := s.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(opaque),
		ExpiresAt: now.Add(refreshTTL),
		CreatedAt: now,
	}
	if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: opaque}, nil
}
