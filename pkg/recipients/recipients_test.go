package recipients_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/emstore/pkg/recipients"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	in := strings.Join([]string{
		"Email, Name ,CLIENT_EMAIL,notes",
		"Alice@Example.com,Alice,Owner@Client.io,vip",
		"",
		"   ",
		`"bob@example.com","Bob, Jr.",owner@client.io`,
		",,",
	}, "\n")

	entries, err := recipients.Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []recipients.Entry{
		{Name: "Alice", Email: "alice@example.com", ClientEmail: "owner@client.io"},
		{Name: "Bob, Jr.", Email: "bob@example.com", ClientEmail: "owner@client.io"},
	}, entries)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, err error)
	}{
		{
			name: "empty input",
			in:   "",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, recipients.ErrNoRows)
			},
		},
		{
			name: "header only",
			in:   "name,email,client_email\n\n",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, recipients.ErrNoRows)
			},
		},
		{
			name: "missing columns",
			in:   "name,mail\nA,a@b.co\n",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, recipients.ErrMissingColumn)
				var colErr *recipients.ColumnError
				require.ErrorAs(t, err, &colErr)
				require.Equal(t, []string{"email", "client_email"}, colErr.Missing)
			},
		},
		{
			name: "missing field reports file row",
			in:   "name,email,client_email\nA,a@b.co,c@d.co\n\nB,,c@d.co\n",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, recipients.ErrMissingField)
				var rowErr *recipients.RowError
				require.ErrorAs(t, err, &rowErr)
				require.Equal(t, 3, rowErr.Row)
				require.Equal(t, "email", rowErr.Field)
			},
		},
		{
			name: "short row counts as missing field",
			in:   "name,email,client_email\nA,a@b.co\n",
			check: func(t *testing.T, err error) {
				var rowErr *recipients.RowError
				require.ErrorAs(t, err, &rowErr)
				require.Equal(t, "client_email", rowErr.Field)
			},
		},
		{
			name: "invalid client email",
			in:   "name,email,client_email\nA,a@b.co,not-an-email\n",
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, recipients.ErrInvalidEmail)
				require.EqualError(t, err, "row 2: invalid client_email format: not-an-email")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := recipients.Parse(strings.NewReader(tt.in))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDuplicates(t *testing.T) {
	entries := []recipients.Entry{
		{Email: "a@x.io"}, {Email: "b@x.io"}, {Email: "a@x.io"}, {Email: "a@x.io"},
	}
	require.Equal(t, []string{"a@x.io", "a@x.io"}, recipients.Duplicates(entries))
	require.Empty(t, recipients.Duplicates(entries[:2]))
}

func TestValidEmail(t *testing.T) {
	require.True(t, recipients.ValidEmail("a@b.co"))
	require.False(t, recipients.ValidEmail("a@b"))
	require.False(t, recipients.ValidEmail("a b@c.io"))
	require.False(t, recipients.ValidEmail("@c.io"))
}
