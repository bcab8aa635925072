package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/emstore/pkg/credstore"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// Fetcher performs the network calls a TokenStore needs. Client implements
// it; tests substitute their own.
type Fetcher interface {
	// FetchCSRFToken asks the token-issuing endpoint for a fresh token.
	FetchCSRFToken(ctx context.Context) (string, error)
	// ExchangeRefreshToken trades a refresh token for a new pair. An empty
	// Refresh in the result keeps the current refresh token.
	ExchangeRefreshToken(ctx context.Context, refresh string) (TokenPair, error)
	// FetchCurrentUser returns nil without error when nobody is logged in.
	FetchCurrentUser(ctx context.Context) (*User, error)
}

// StoreOptions configures a TokenStore.
type StoreOptions struct {
	Scheme       Scheme
	Credentials  credstore.Storage
	UserCacheTTL time.Duration
	TokenMaxAge  time.Duration
	Logger       *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenStore is the single owner of the CSRF token, the bearer pair and the
// cached current user. Concurrent fetches of the same thing are collapsed
// into one network call whose result every caller receives.
//
// Every change to the credential bumps a generation counter. Requests record
// the generation they were sent with, which lets a burst of rejections that
// all saw the same stale credential share exactly one refresh.
type TokenStore struct {
	fetcher Fetcher
	scheme  Scheme
	creds   credstore.Storage
	ttl     time.Duration
	maxAge  time.Duration
	log     *slog.Logger
	now     func() time.Time

	flights singleflight.Group

	mu         sync.Mutex
	csrf       CSRFToken
	pair       TokenPair
	loaded     bool
	generation uint64
	clears     uint64
	failed     *failure

	user      *User
	userAt    time.Time
	userEpoch uint64
}

// failure remembers the outcome of a refresh that could not recover the
// credential seen at generation from.
type failure struct {
	from uint64
	err  error
}

// NewTokenStore creates a store backed by f.
func NewTokenStore(f Fetcher, opts StoreOptions) *TokenStore {
	if opts.Scheme == "" {
		opts.Scheme = SchemeCookieCSRF
	}
	if opts.Credentials == nil {
		opts.Credentials = credstore.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = slogx.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenStore{
		fetcher: f,
		scheme:  opts.Scheme,
		creds:   opts.Credentials,
		ttl:     durationOr(opts.UserCacheTTL, DefaultUserCacheTTL),
		maxAge:  opts.TokenMaxAge,
		log:     opts.Logger,
		now:     opts.Now,
	}
}

// ============================================================================
// Tokens
// ============================================================================

// GetToken returns the current token, fetching it if absent. Under the
// cookie scheme this is the CSRF token. Under the bearer scheme it is the
// access token, obtained from the refresh token when none is held.
func (s *TokenStore) GetToken(ctx context.Context) (string, error) {
	if s.scheme == SchemeBearer {
		pair, gen, err := s.bearer(ctx)
		if err != nil {
			return "", err
		}
		if pair.Access != "" {
			return pair.Access, nil
		}
		if pair.Refresh == "" {
			return "", ErrNoRefreshToken
		}
		// A refresh token that cannot be exchanged is discarded with the
		// rest of the store.
		if err := s.recover(ctx, gen); err != nil {
			return "", err
		}
		pair, _, err = s.bearer(ctx)
		if err != nil {
			return "", err
		}
		if pair.Access == "" {
			return "", ErrReauthenticationRequired
		}
		return pair.Access, nil
	}

	tok, _, err := s.csrfToken(ctx)
	return tok, err
}

// RefreshToken discards the current token and fetches a new one. Concurrent
// calls share a single network operation.
func (s *TokenStore) RefreshToken(ctx context.Context) error {
	_, err := share(ctx, &s.flights, "token", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.refresh(ctx)
	})
	return err
}

// Token returns the cached CSRF token without fetching.
func (s *TokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf.Value
}

// SetCSRFToken replaces the cached CSRF token, as when a server rotates it
// on a response. Empty and unchanged values are ignored.
func (s *TokenStore) SetCSRFToken(value string) {
	if value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == s.csrf.Value {
		return
	}
	s.csrf = CSRFToken{Value: value, FetchedAt: s.now()}
	s.generation++
}

// csrfToken returns a usable CSRF token and the generation it belongs to.
func (s *TokenStore) csrfToken(ctx context.Context) (string, uint64, error) {
	s.mu.Lock()
	if s.freshLocked() {
		tok, gen := s.csrf.Value, s.generation
		s.mu.Unlock()
		return tok, gen, nil
	}
	s.mu.Unlock()

	_, err := share(ctx, &s.flights, "token", func(ctx context.Context) (struct{}, error) {
		s.mu.Lock()
		fresh := s.freshLocked()
		s.mu.Unlock()
		if fresh {
			return struct{}{}, nil
		}
		return struct{}{}, s.refresh(ctx)
	})
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf.Value, s.generation, nil
}

func (s *TokenStore) freshLocked() bool {
	if s.csrf.IsZero() {
		return false
	}
	return s.maxAge <= 0 || s.now().Sub(s.csrf.FetchedAt) < s.maxAge
}

// refresh performs the network half of a refresh. Callers coalesce it.
func (s *TokenStore) refresh(ctx context.Context) error {
	if s.scheme == SchemeBearer {
		return s.exchange(ctx)
	}

	s.mu.Lock()
	s.csrf = CSRFToken{}
	gen, clears := s.generation, s.clears
	s.mu.Unlock()

	tok, err := s.fetcher.FetchCSRFToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	if tok == "" {
		return errors.New("failed to fetch csrf token: empty token")
	}

	s.mu.Lock()
	stale, err := s.supersededLocked(gen, clears)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// A rotated token that arrived meanwhile wins over the fetched one.
	if !stale || s.csrf.IsZero() {
		s.csrf = CSRFToken{Value: tok, FetchedAt: s.now()}
		s.generation++
	}
	s.mu.Unlock()

	s.log.DebugContext(ctx, "csrf token fetched")
	return nil
}

func (s *TokenStore) exchange(ctx context.Context) error {
	s.mu.Lock()
	clears := s.clears
	s.mu.Unlock()

	pair, gen, err := s.bearer(ctx)
	if err != nil {
		return err
	}
	if pair.Refresh == "" {
		return ErrNoRefreshToken
	}

	next, err := s.fetcher.ExchangeRefreshToken(ctx, pair.Refresh)
	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}
	if next.Access == "" {
		return errors.New("failed to refresh access token: empty access token")
	}
	if next.Refresh == "" {
		next.Refresh = pair.Refresh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stale, err := s.supersededLocked(gen, clears); stale {
		return err
	}
	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "access token refreshed")
	return nil
}

// supersededLocked reports whether the credential a refresh started from has
// since been replaced. A refresh that outlived Clear must not bring the
// credential back, so it fails with ErrReauthenticationRequired. One that
// lost to a newer credential, such as a fresh login, yields to it.
func (s *TokenStore) supersededLocked(gen, clears uint64) (bool, error) {
	if s.clears != clears {
		return true, ErrReauthenticationRequired
	}
	return s.generation != gen, nil
}

// ============================================================================
// Credentials
// ============================================================================

// SetCredential records a newly issued credential after login, registration
// or an external refresh. Under the cookie scheme the session lives in the
// cookie jar and pair is normally empty. The current-user cache is dropped
// either way.
func (s *TokenStore) SetCredential(ctx context.Context, pair TokenPair) error {
	s.InvalidateUser()

	if s.scheme == SchemeBearer {
		return s.storePair(ctx, pair)
	}

	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
	return nil
}

// Credential returns the bearer pair, loading it from storage on first use.
func (s *TokenStore) Credential(ctx context.Context) (TokenPair, error) {
	pair, _, err := s.bearer(ctx)
	return pair, err
}

// Clear discards the CSRF token, the bearer pair and the cached user. The
// bearer pair is removed from durable storage too. A refresh still in flight
// is discarded when it completes.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.csrf = CSRFToken{}
	s.pair = TokenPair{}
	s.loaded = true
	s.generation++
	s.clears++
	s.user = nil
	s.userEpoch++

	if err := s.creds.Delete(ctx, credstore.KeyAccessToken, credstore.KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to delete stored credentials: %w", err)
	}
	return nil
}

// Generation reports how many times the credential has changed.
func (s *TokenStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *TokenStore) bearer(ctx context.Context) (TokenPair, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		access, err := s.creds.Get(ctx, credstore.KeyAccessToken)
		if err != nil && !errors.Is(err, credstore.ErrNotFound) {
			return TokenPair{}, 0, fmt.Errorf("failed to load access token: %w", err)
		}
		refresh, err := s.creds.Get(ctx, credstore.KeyRefreshToken)
		if err != nil && !errors.Is(err, credstore.ErrNotFound) {
			return TokenPair{}, 0, fmt.Errorf("failed to load refresh token: %w", err)
		}
		s.pair = TokenPair{Access: access, Refresh: refresh}
		s.loaded = true
	}
	return s.pair, s.generation, nil
}

func (s *TokenStore) storePair(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, pair)
}

// persistLocked writes pair to durable storage and then adopts it. Holding
// the lock across the writes keeps Clear from interleaving with them.
func (s *TokenStore) persistLocked(ctx context.Context, pair TokenPair) error {
	if err := s.creds.Set(ctx, credstore.KeyAccessToken, pair.Access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if pair.Refresh == "" {
		if err := s.creds.Delete(ctx, credstore.KeyRefreshToken); err != nil {
			return fmt.Errorf("failed to delete refresh token: %w", err)
		}
	} else if err := s.creds.Set(ctx, credstore.KeyRefreshToken, pair.Refresh); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.pair = pair
	s.loaded = true
	s.generation++
	return nil
}

// recover is called by requests rejected while holding the credential of
// generation observed. All callers that observed the same generation share
// one refresh; callers that observed an older one replay straight away with
// whatever is current. When the refresh fails the store is cleared and every
// caller of that generation gets the same error.
func (s *TokenStore) recover(ctx context.Context, observed uint64) error {
	if settled, err := s.settled(observed); settled {
		return err
	}

	key := "recover-" + strconv.FormatUint(observed, 10)
	_, err := share(ctx, &s.flights, key, func(ctx context.Context) (struct{}, error) {
		// An earlier flight for the same observation may have finished
		// between the check above and this one.
		if settled, err := s.settled(observed); settled {
			return struct{}{}, err
		}

		err := s.RefreshToken(ctx)
		if err == nil {
			return struct{}{}, nil
		}

		// Record the failure before clearing so callers arriving in between
		// do not mistake the cleared state for a successful refresh.
		s.mu.Lock()
		s.failed = &failure{from: observed, err: err}
		s.mu.Unlock()

		s.log.WarnContext(ctx, "credential refresh failed, clearing session", "err", err)
		if cerr := s.Clear(ctx); cerr != nil {
			s.log.WarnContext(ctx, "failed to clear credentials", "err", cerr)
		}
		return struct{}{}, err
	})
	return err
}

// settled reports whether a rejection seen at generation observed needs no
// refresh of its own, along with the error such a caller should get.
func (s *TokenStore) settled(observed uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.failed; f != nil && f.from == observed {
		return true, f.err
	}
	return s.generation != observed, nil
}

// ============================================================================
// Current user
// ============================================================================

// GetCurrentUser returns the cached profile while it is younger than the
// cache TTL, otherwise fetches it once for all concurrent callers. A nil
// user with a nil error means nobody is logged in.
func (s *TokenStore) GetCurrentUser(ctx context.Context, forceRefresh bool) (*User, error) {
	s.mu.Lock()
	if !forceRefresh && s.user != nil && s.now().Sub(s.userAt) < s.ttl {
		u := *s.user
		s.mu.Unlock()
		return &u, nil
	}
	epoch := s.userEpoch
	s.mu.Unlock()

	key := "user-" + strconv.FormatUint(epoch, 10)
	u, err := share(ctx, &s.flights, key, func(ctx context.Context) (*User, error) {
		u, err := s.fetcher.FetchCurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.userEpoch == epoch && u != nil {
			cp := *u
			s.user = &cp
			s.userAt = s.now()
		}
		s.mu.Unlock()
		return u, nil
	})
	if err != nil || u == nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

// InvalidateUser drops the cached profile.
func (s *TokenStore) InvalidateUser() {
	s.mu.Lock()
	s.user = nil
	s.userEpoch++
	s.mu.Unlock()
}

// expire clears the store if it still holds the credential of generation
// gen. A newer credential, such as one from a login that raced the failing
// request, is left alone.
func (s *TokenStore) expire(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	current := s.generation == gen
	s.mu.Unlock()
	if !current {
		return nil
	}
	return s.Clear(ctx)
}
