package options

import (
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"
)

var validate = validator.New()

// NormalizeURL trims raw, defaults the scheme to http:// and checks that the
// result is an absolute http(s) URL with an IP or a dotted host name.
func NormalizeURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if !hasHTTPScheme(candidate) {
		candidate = "http://" + candidate
	}

	if !isValidURL(candidate) {
		return "", &InvalidURLError{URL: candidate}
	}
	return candidate, nil
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isValidURL(s string) bool {
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return false
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return false
	}
	if err := validate.Var(ascii, "hostname_rfc1123"); err != nil {
		return false
	}

	// Bare words such as "http://intranet" are not addressable render targets.
	dot := strings.LastIndexByte(ascii, '.')
	if dot <= 0 {
		return false
	}
	return isTLD(ascii[dot+1:])
}

func isTLD(label string) bool {
	if len(label) < 2 {
		return false
	}
	if strings.HasPrefix(strings.ToLower(label), "xn--") {
		return true
	}
	for i := 0; i < len(label); i++ {
		b := label[i]
		if (b < 'a' || b > 'z') && (b < 'A' || b > 'Z') {
			return false
		}
	}
	return true
}
