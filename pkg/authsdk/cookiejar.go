package authsdk

import (
	"fmt"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// NewCookieJar returns a cookie jar that applies public suffix rules, so a
// session cookie set by one site is never offered to a sibling domain.
func NewCookieJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}
