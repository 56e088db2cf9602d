package resolver

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bouncerhq/bouncer/internal/entity"
)

// ErrIllegalRedirect is returned by CheckedRedirect when u matches none of
// the client's redirect_url_patterns.
var ErrIllegalRedirect = errors.New("resolver: illegal redirect")

// ErrIllegalReferer is returned by CheckedReferer when referer matches
// none of the client's referrers patterns.
var ErrIllegalReferer = errors.New("resolver: illegal referer")

// CheckedRedirect implements spec §4.F's checked_redirect: u passes
// unchanged if it starts with the literal "/authorize?"; otherwise at
// least one of client's redirect_url_patterns must match it as an anchored
// regex.
func CheckedRedirect(client *entity.Client, u string) (string, error) {
	if strings.HasPrefix(u, "/authorize?") {
		return u, nil
	}
	if matchesAny(client.RedirectURLPatterns, u) {
		return u, nil
	}
	return "", ErrIllegalRedirect
}

// CheckedReferer validates referer against client's referrers, analogous to
// CheckedRedirect.
func CheckedReferer(client *entity.Client, referer string) error {
	if matchesAny(client.Referrers, referer) {
		return nil
	}
	return ErrIllegalReferer
}

func matchesAny(patterns []string, candidate string) bool {
	for _, p := range patterns {
		re, err := anchoredRegex(p)
		if err != nil {
			continue
		}
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

func anchoredRegex(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern = pattern + "$"
	}
	return regexp.Compile(pattern)
}
