// Package urlcanon implements the canonical URL identity used throughout
// the coordinator: the Host Registry, Job Queue, and Blacklist all key off
// it so that two spellings of the same resource collapse to one job.
package urlcanon

import (
	"strconv"
	"strings"

	"github.com/slicingmelon/go-rawurlparser"

	"go-wget/internal/errtax"
)

// defaultPort is the scheme's implicit port, per spec.md §3.
func defaultPort(scheme string) string {
	switch scheme {
	case "https":
		return "443"
	default:
		return "80"
	}
}

// URL is a parsed, canonicalized reference to a fetchable resource.
// Fragment is discarded at parse time: it never participates in identity
// or in the wire request, per spec.md §3.
type URL struct {
	Scheme string // "http" or "https"
	Host   string // lowercased, no port
	Port   string // explicit, defaulted per scheme
	Path   string
	Query  string
}

// Parse parses rawURL with go-rawurlparser and canonicalizes it. Only
// http and https schemes are accepted; anything else is a KindInput error.
func Parse(rawURL string) (URL, error) {
	parsed, err := rawurlparser.RawURLParse(rawURL)
	if err != nil {
		return URL{}, errtax.Wrap(errtax.KindInput, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return URL{}, errtax.New(errtax.KindInput, "unsupported scheme %q in %q", parsed.Scheme, rawURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return URL{}, errtax.New(errtax.KindInput, "missing host in %q", rawURL)
	}

	port := portOf(parsed.Host)
	if port == "" {
		port = defaultPort(scheme)
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	return URL{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   path,
		Query:  parsed.Query,
	}, nil
}

// portOf extracts the port from a host:port pair produced by
// rawurlparser, returning "" when no port was present or it doesn't
// parse as a number.
func portOf(hostport string) string {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return ""
	}
	port := hostport[idx+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	return port
}

// String renders the canonical form: scheme://host:port/path?query. This
// is the byte form used for identity comparisons and for the in-memory
// blacklist keys.
func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteByte(':')
	b.WriteString(u.Port)
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	return b.String()
}

// HostPort renders "host:port", the key the Host Registry and DNS cache
// use to group jobs and resolutions per physical endpoint.
func (u URL) HostPort() string {
	return u.Host + ":" + u.Port
}

// Equal reports whether two URLs have the same canonical identity, per
// spec.md §3: scheme, lowercased host, explicit port, path, and query
// must all match; fragment never participates.
func (u URL) Equal(other URL) bool {
	return u.String() == other.String()
}

// ResolveReference resolves a possibly-relative href discovered on a page
// served at base, returning the canonicalized absolute URL. Only scheme-
// relative, host-relative, and path-relative hrefs are supported; hrefs
// already absolute are parsed directly.
func ResolveReference(base URL, href string) (URL, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return URL{}, errtax.New(errtax.KindInput, "empty href")
	}

	switch {
	case strings.HasPrefix(href, "//"):
		return Parse(base.Scheme + ":" + href)
	case strings.Contains(href, "://"):
		return Parse(href)
	case strings.HasPrefix(href, "/"):
		return Parse(base.Scheme + "://" + base.HostPort() + href)
	default:
		dir := base.Path
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			dir = dir[:i+1]
		} else {
			dir = "/"
		}
		return Parse(base.Scheme + "://" + base.HostPort() + joinPath(dir, href))
	}
}

func joinPath(dir, rel string) string {
	combined := dir + rel
	segments := strings.Split(combined, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != "" {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	result := strings.Join(out, "/")
	if !strings.HasPrefix(result, "/") {
		result = "/" + result
	}
	return result
}
