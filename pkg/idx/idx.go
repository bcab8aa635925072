// Package idx generates and parses the ULID identifiers used for campaigns,
// recipients, sessions and request correlation.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID. Only use it as a placeholder.
const Zero ID = ""

// shortLen is the number of trailing characters shown by Short. The tail of
// a ULID is entropy, so it stays distinct for IDs minted in the same
// millisecond.
const shortLen = 8

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new lexicographically sortable ID for the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns an ID stamped with t. Handy in tests and for building
// time-bounded cursors.
func NewAt(t time.Time) ID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates s as a ULID. Lowercase input is accepted and normalised.
func Parse(s string) (ID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}

	return ID(s), nil
}

// MustParse parses or panics. Meant for fixed IDs in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Short returns the last few characters of the ID for compact CLI output.
func (id ID) Short() string {
	s := id.String()
	if len(s) <= shortLen {
		return s
	}
	return strings.ToLower(s[len(s)-shortLen:])
}

// Time extracts the embedded timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}

// Compare orders two IDs lexically, which for ULIDs is also creation order.
// Returns -1 if a<b, 0 if a==b, +1 if a>b.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}
