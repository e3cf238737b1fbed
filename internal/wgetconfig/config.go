// Package wgetconfig aggregates every CLI-configurable value the
// coordinator's components need into one struct, so cliopts and the
// main controller share a single source of truth instead of passing
// two dozen loose parameters around.
package wgetconfig

import (
	"strings"
	"time"

	"go-wget/internal/dnscache"
	"go-wget/internal/fetch"
	"go-wget/internal/saver"
	"go-wget/internal/urlcanon"
)

// HTTPSEnforce selects how strictly the coordinator requires HTTPS.
type HTTPSEnforce int

const (
	// HTTPSEnforceNone allows HTTP with no restriction.
	HTTPSEnforceNone HTTPSEnforce = iota
	// HTTPSEnforceSoft is accepted and parsed; the Fetch Pipeline treats
	// it the same as HTTPSEnforceNone.
	HTTPSEnforceSoft
	// HTTPSEnforceHard forbids any fallback from HTTPS to HTTP; a TLS
	// failure under this mode is terminal for the host.
	HTTPSEnforceHard
)

func ParseHTTPSEnforce(s string) HTTPSEnforce {
	switch s {
	case "soft":
		return HTTPSEnforceSoft
	case "hard":
		return HTTPSEnforceHard
	default:
		return HTTPSEnforceNone
	}
}

// Config is the fully resolved configuration for one run, built from
// parsed CLI options (spec.md §6). It has no notion of flag names or
// defaults-merging; that belongs to cliopts.
type Config struct {
	// Seeds and input.
	Seeds     []string
	InputFile string // "" = none, "-" = stdin

	// Recursion.
	Recursive      bool
	Level          int
	NoParent       bool
	SpanHosts      bool
	IncludeDomains []string
	ExcludeDomains []string
	HTTPSOnly      bool
	HTTPSEnforce   HTTPSEnforce
	PageRequisites bool
	MaxRedirect    int

	// Retry / pacing.
	Tries      int
	Wait       time.Duration
	WaitRetry  time.Duration
	RandomWait bool

	// Chunked / Metalink downloads.
	ChunkSize int64
	Metalink  bool

	// Saver.
	Clobber   saver.ClobberPolicy
	OutputDir string

	// Resource limits.
	Quota   int64
	Threads int

	// Timeouts. ConnectTimeout and ReadTimeout apply only when positive;
	// 0 or a negative value means no timeout. DNSTimeout is carried but
	// not applied: lookups run under the connect timeout's context.
	DNSTimeout     time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Request identity.
	UserAgent string
	Referer   string
	Headers   []string // "Name: Value" pairs, as given on the CLI
	User      string
	Password  string

	// Robots and spider mode.
	RespectRobots bool
	Spider        bool

	// DNS backend selection.
	DoH    bool
	DoHURL string

	// Address-family preference applied to every DNS resolution
	// (spec.md §4.1), e.g. --inet4-only/--inet6-only.
	PreferFamily dnscache.Family
	StrictFamily bool
}

// FamilyPreference projects the family-preference fields into the
// dnscache.FamilyPreference shape a Resolve call expects.
func (c Config) FamilyPreference() dnscache.FamilyPreference {
	return dnscache.FamilyPreference{Family: c.PreferFamily, Strict: c.StrictFamily}
}

// DefaultConfig returns the coordinator's baked-in defaults, the values
// cliopts falls back to when a flag is left unset.
func DefaultConfig() Config {
	return Config{
		Level:          5,
		MaxRedirect:    20,
		Tries:          20,
		Wait:           0,
		WaitRetry:      10 * time.Second,
		ChunkSize:      0,
		Clobber:        saver.ClobberOverwrite,
		Threads:        5,
		DNSTimeout:     5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
		UserAgent:      "go-wget/1.0",
		RespectRobots:  true,
	}
}

// RecursionOptions projects the recursion-relevant fields into the
// shape the Fetch Pipeline expects, merging the seed-host set computed
// by the input driver at startup. ParentDirs holds the directory of
// each URL in Seeds; seeds read from an input file or stdin do not
// contribute one.
func (c Config) RecursionOptions(seedHosts map[string]struct{}) fetch.RecursionOptions {
	var parentDirs []string
	for _, raw := range c.Seeds {
		if u, err := urlcanon.Parse(raw); err == nil {
			parentDirs = append(parentDirs, u.Path[:strings.LastIndex(u.Path, "/")+1])
		}
	}
	include := make(map[string]struct{}, len(c.IncludeDomains))
	for _, h := range c.IncludeDomains {
		include[h] = struct{}{}
	}
	exclude := make(map[string]struct{}, len(c.ExcludeDomains))
	for _, h := range c.ExcludeDomains {
		exclude[h] = struct{}{}
	}
	return fetch.RecursionOptions{
		Recursive:      c.Recursive,
		Level:          c.Level,
		SpanHosts:      c.SpanHosts,
		SeedHosts:      seedHosts,
		IncludeHosts:   include,
		ExcludeHosts:   exclude,
		NoParent:       c.NoParent,
		ParentDirs:     parentDirs,
		HTTPSOnly:      c.HTTPSOnly,
		PageRequisites: c.PageRequisites,
	}
}

// ParsedHeaders splits each "Name: Value" header string into a pair,
// skipping malformed entries.
func (c Config) ParsedHeaders() map[string]string {
	out := make(map[string]string, len(c.Headers))
	for _, h := range c.Headers {
		name, value, ok := splitHeader(h)
		if ok {
			out[name] = value
		}
	}
	return out
}

func splitHeader(h string) (name, value string, ok bool) {
	n, v, found := strings.Cut(h, ":")
	if !found {
		return "", "", false
	}
	name = strings.TrimSpace(n)
	value = strings.TrimSpace(v)
	return name, value, name != ""
}
