package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/internal/devserver/store/drivers/sqlite"
	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
	"github.com/aussiebroadwan/emstore/pkg/jwtx"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *sqlite.Store
	auth      *service.AuthService
	campaigns *service.CampaignService
	entries   *service.EntryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "https://emstore.test"})
	require.NoError(t, err)

	sealer, err := cryptox.NewSealer([]byte("test-master-key"))
	require.NoError(t, err)

	return &fixture{
		store: st,
		auth: &service.AuthService{
			Store:      st,
			Hasher:     cryptox.NewPasswordHasher("pepper"),
			KeyManager: km,
			SessionTTL: time.Hour,
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		campaigns: &service.CampaignService{Store: st, Sealer: sealer, MaxAttachmentSize: 16},
		entries:   &service.EntryService{Store: st},
	}
}

func (f *fixture) register(t *testing.T, username string) domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), service.RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "correct horse",
		Password2: "correct horse",
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.auth.Register(ctx, service.RegisterInput{
		Username:  " alice ",
		Email:     "Alice@Example.com",
		Password:  "correct horse",
		Password2: "correct horse",
		FirstName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "alice@example.com", u.Email)
	require.NotEqual(t, "correct horse", u.PasswordHash)

	tests := []struct {
		name   string
		in     service.RegisterInput
		fields []string
	}{
		{
			name:   "missing fields",
			in:     service.RegisterInput{},
			fields: []string{"username", "email", "password"},
		},
		{
			name:   "passwords differ",
			in:     service.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "correct horse", Password2: "battery staple"},
			fields: []string{"password"},
		},
		{
			name:   "short password",
			in:     service.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short", Password2: "short"},
			fields: []string{"password"},
		},
		{
			name:   "invalid email",
			in:     service.RegisterInput{Username: "bob", Email: "bob@", Password: "correct horse", Password2: "correct horse"},
			fields: []string{"email"},
		},
		{
			name:   "taken username and email",
			in:     service.RegisterInput{Username: "ALICE", Email: "alice@example.com", Password: "correct horse", Password2: "correct horse"},
			fields: []string{"username", "email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.in)
			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			for _, field := range tt.fields {
				require.Contains(t, verr.Fields, field)
			}
			require.Len(t, verr.Fields, len(tt.fields))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice")

	u, err := f.auth.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, alice.ID, u.ID)

	_, err = f.auth.Authenticate(ctx, "alice", "wrong password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.auth.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.auth.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestSessions(t *testing.T) {
	ctx := slogx.WithContext(context.Background(), slogx.Discard())
	f := newFixture(t)
	alice := f.register(t, "alice")

	token, expires, err := f.auth.StartSession(ctx, alice.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expires.After(time.Now()))

	p, err := f.auth.LookupSession(ctx, token)
	require.NoError(t, err)
	require.Equal(t, alice.ID, p.UserID)
	require.Equal(t, httpx.MethodSession, p.Method)
	require.NotEmpty(t, p.SessionID)

	_, err = f.auth.LookupSession(ctx, "not-a-session")
	require.ErrorIs(t, err, httpx.ErrNoSession)

	t.Run("expired sessions are rejected", func(t *testing.T) {
		later := *f.auth
		later.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.LookupSession(ctx, token)
		require.ErrorIs(t, err, httpx.ErrNoSession)
	})

	require.NoError(t, f.auth.EndSession(ctx, p.SessionID))
	_, err = f.auth.LookupSession(ctx, token)
	require.ErrorIs(t, err, httpx.ErrNoSession)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice")

	first, err := f.auth.IssueTokens(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, first.AccessToken)
	require.NotEmpty(t, first.RefreshToken)

	claims, err := f.auth.KeyManager.Verifier().Verify(first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)

	second, err := f.auth.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Replaying a rotated token revokes the whole family.
	_, err = f.auth.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
	_, err = f.auth.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	_, err = f.auth.Refresh(ctx, "")
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	third, err := f.auth.IssueTokens(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.auth.RevokeRefresh(ctx, third.RefreshToken))
	_, err = f.auth.Refresh(ctx, third.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestCampaigns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	_, err := f.campaigns.Create(ctx, alice.ID, service.CampaignInput{Name: "", Email: "bad"})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "email")
	require.Contains(t, verr.Fields, "password")

	c, err := f.campaigns.Create(ctx, alice.ID, service.CampaignInput{
		Name:     "Spring",
		Email:    "Outreach@Example.com",
		Password: "mailbox-secret",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		UseSSL:   true,
	})
	require.NoError(t, err)
	require.Equal(t, "outreach@example.com", c.Email)
	require.NotContains(t, string(c.PasswordSealed), "mailbox-secret")

	got, err := f.campaigns.Get(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	pw, err := f.campaigns.MailboxPassword(got)
	require.NoError(t, err)
	require.Equal(t, "mailbox-secret", pw)

	_, err = f.campaigns.Get(ctx, bob.ID, c.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	n, err := f.campaigns.Count(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	t.Run("attachments", func(t *testing.T) {
		atts, err := f.campaigns.AddAttachments(ctx, alice.ID, c.ID, []service.Upload{
			{Filename: "a.txt", ContentType: "text/plain", Data: []byte("hello")},
			{Filename: "b.bin", Data: []byte{0, 1}},
		})
		require.NoError(t, err)
		require.Len(t, atts, 2)
		require.Equal(t, "application/octet-stream", atts[1].ContentType)

		list, err := f.campaigns.List(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Len(t, list[0].Attachments, 2)

		_, err = f.campaigns.AddAttachments(ctx, alice.ID, c.ID, []service.Upload{
			{Filename: "big.bin", Data: make([]byte, 17)},
		})
		require.ErrorIs(t, err, service.ErrTooLarge)

		_, err = f.campaigns.AddAttachments(ctx, bob.ID, c.ID, []service.Upload{
			{Filename: "a.txt", Data: []byte("x")},
		})
		require.ErrorIs(t, err, service.ErrNotFound)

		_, err = f.campaigns.AddAttachments(ctx, alice.ID, c.ID, nil)
		require.ErrorAs(t, err, &verr)
	})
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice")

	e, err := f.entries.Add(ctx, alice.ID, service.EntryInput{Name: "Ann", Email: "ANN@example.com"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", e.Email)

	_, err = f.entries.Add(ctx, alice.ID, service.EntryInput{Name: "Ann", Email: "ann@example.com"})
	require.ErrorIs(t, err, service.ErrDuplicate)

	_, err = f.entries.Add(ctx, alice.ID, service.EntryInput{Name: "Ann", Email: "ann@example.com", CampaignID: "missing"})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "campaign_id")

	t.Run("bulk rejects repeats within the request", func(t *testing.T) {
		_, err := f.entries.AddBulk(ctx, alice.ID, "", []service.EntryInput{
			{Name: "A", Email: "x@example.com"},
			{Name: "B", Email: "X@example.com"},
			{Name: "C", Email: "y@example.com"},
		})
		var dup *service.DuplicateInRequestError
		require.ErrorAs(t, err, &dup)
		require.Equal(t, []string{"x@example.com"}, dup.Emails)

		found, err := f.store.Entries().ExistingEmails(ctx, []string{"y@example.com"})
		require.NoError(t, err)
		require.Empty(t, found, "nothing is stored when the request repeats an address")
	})

	t.Run("bulk skips stored addresses", func(t *testing.T) {
		out, err := f.entries.AddBulk(ctx, alice.ID, "", []service.EntryInput{
			{Name: "Ann", Email: "ann@example.com"},
			{Name: "Ben", Email: "ben@example.com"},
			{Name: "Cat", Email: "cat@example.com"},
		})
		require.NoError(t, err)
		require.Equal(t, 2, out.Created)
		require.Equal(t, []string{"ann@example.com"}, out.DuplicateEmails)
		require.Equal(t, 3, out.TotalProcessed)
	})

	t.Run("bulk validates rows", func(t *testing.T) {
		_, err := f.entries.AddBulk(ctx, alice.ID, "", []service.EntryInput{
			{Name: "Dan", Email: "dan@example.com"},
			{Name: "", Email: "not-an-email"},
		})
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "entries[2].name")
		require.Contains(t, verr.Fields, "entries[2].email")

		_, err = f.entries.AddBulk(ctx, alice.ID, "", nil)
		require.ErrorAs(t, err, &verr)
	})
}

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, _, err := f.auth.StartSession(ctx, alice.ID)
	require.NoError(t, err)
	_, err = f.auth.IssueTokens(ctx, alice)
	require.NoError(t, err)

	hk := service.NewHousekeepingService(f.store, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	sessions, tokens := hk.Cleanup(ctx, time.Now())
	require.Zero(t, sessions)
	require.Zero(t, tokens)

	sessions, tokens = hk.Cleanup(ctx, time.Now().Add(2*time.Hour))
	require.EqualValues(t, 1, sessions)
	require.EqualValues(t, 1, tokens)
}
