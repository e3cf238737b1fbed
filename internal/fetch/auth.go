package fetch

import (
	"encoding/base64"
	"net/http"
	"strings"

	digest "github.com/Mzack9999/go-http-digest-auth-client"
)

// Challenge is a parsed WWW-Authenticate header, classified by scheme so
// the retry step can prefer Digest over Basic per spec.md §4.5 rule 5.
type Challenge struct {
	Scheme string // "digest" or "basic"
	Raw    string
}

// ParseChallenges extracts every WWW-Authenticate challenge from a 401
// response, in header order.
func ParseChallenges(resp *http.Response) []Challenge {
	var out []Challenge
	for _, raw := range resp.Header.Values("WWW-Authenticate") {
		scheme := strings.ToLower(strings.SplitN(raw, " ", 2)[0])
		out = append(out, Challenge{Scheme: scheme, Raw: raw})
	}
	return out
}

// StrongestChallenge picks Digest over Basic when both are offered, per
// spec.md §4.5: "retry once with the strongest challenge (prefer Digest
// over Basic)".
func StrongestChallenge(challenges []Challenge) (Challenge, bool) {
	var basic Challenge
	haveBasic := false
	for _, c := range challenges {
		if c.Scheme == "digest" {
			return c, true
		}
		if c.Scheme == "basic" {
			basic, haveBasic = c, true
		}
	}
	return basic, haveBasic
}

// ApplyBasic sets the Authorization header for HTTP Basic auth. Basic
// auth is nothing more than base64(user:pass); no third-party helper
// adds anything over encoding/base64 here.
func ApplyBasic(req *http.Request, user, pass string) {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	req.Header.Set("Authorization", "Basic "+token)
}

// ApplyDigest performs the full Digest handshake against url using
// Mzack9999/go-http-digest-auth-client, returning the authenticated
// response. It re-issues the original request once with the computed
// Authorization header.
func ApplyDigest(method, url, body, user, pass string) (*http.Response, error) {
	dr := digest.NewRequest(user, pass, method, url, body)
	return dr.Execute()
}
