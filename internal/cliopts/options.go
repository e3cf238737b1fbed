// Package cliopts parses the command line into a wgetconfig.Config,
// using projectdiscovery/goflags the way the rest of the projectdiscovery
// tool family (nuclei, httpx, subfinder) builds its flag sets — the
// teacher imports goflags only for its StringSlice value type; here it
// is generalized to the full NewFlagSet/CreateGroup builder.
package cliopts

import (
	"time"

	"github.com/projectdiscovery/goflags"

	"go-wget/internal/dnscache"
	"go-wget/internal/saver"
	"go-wget/internal/wgetconfig"
)

// Options is the raw, un-resolved set of CLI values. Parse fills it in;
// Resolve projects it onto a wgetconfig.Config.
type Options struct {
	Seeds     goflags.StringSlice
	InputFile string

	Recursive      bool
	Level          int
	NoParent       bool
	SpanHosts      bool
	IncludeDomains goflags.StringSlice
	ExcludeDomains goflags.StringSlice
	HTTPSOnly      bool
	HTTPSEnforce   string
	PageRequisites bool
	MaxRedirect    int

	Tries      int
	Wait       int // seconds
	WaitRetry  int // seconds
	RandomWait bool

	ChunkSize string
	Metalink  bool

	Timestamping bool
	Continue     bool
	NoClobber    bool
	OutputDir    string

	Quota   string
	Threads int

	DNSTimeout     int
	ConnectTimeout int
	ReadTimeout    int

	UserAgent string
	Referer   string
	Headers   goflags.StringSlice
	User      string
	Password  string

	NoRobots bool
	Spider   bool

	DoH    bool
	DoHURL string

	Inet4Only bool
	Inet6Only bool

	Verbose bool
	Debug   bool
}

// Parse builds a goflags.FlagSet mirroring the coordinator-affecting
// subset of wget's CLI (spec.md §6), parses os.Args, and returns the
// raw Options.
func Parse() (*Options, error) {
	opts := &Options{}

	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription("A recursive, multi-threaded web downloader.")

	flagSet.CreateGroup("input", "Input",
		flagSet.StringSliceVarP(&opts.Seeds, "url", "u", nil, "seed URL(s) to download", goflags.StringSliceOptions),
		flagSet.StringVarP(&opts.InputFile, "input-file", "i", "", "file containing seed URLs, or '-' for stdin"),
	)

	flagSet.CreateGroup("recursion", "Recursive download",
		flagSet.BoolVarP(&opts.Recursive, "recursive", "r", false, "turn on recursive retrieving"),
		flagSet.IntVarP(&opts.Level, "level", "l", 5, "maximum recursion depth"),
		flagSet.BoolVarP(&opts.NoParent, "no-parent", "np", false, "don't ascend to the parent directory"),
		flagSet.BoolVar(&opts.SpanHosts, "span-hosts", false, "go to foreign hosts when recursive"),
		flagSet.StringSliceVarP(&opts.IncludeDomains, "include-domains", "D", nil, "comma-separated list of domains to follow", goflags.CommaSeparatedStringSliceOptions),
		flagSet.StringSliceVar(&opts.ExcludeDomains, "exclude-domains", nil, "comma-separated list of domains to exclude", goflags.CommaSeparatedStringSliceOptions),
		flagSet.BoolVar(&opts.HTTPSOnly, "https-only", false, "only follow https URLs when recursing"),
		flagSet.StringVar(&opts.HTTPSEnforce, "https-enforce", "none", "https enforcement mode: none, soft, hard"),
		flagSet.BoolVarP(&opts.PageRequisites, "page-requisites", "p", false, "get all images etc. needed to display the page"),
		flagSet.IntVar(&opts.MaxRedirect, "max-redirect", 20, "maximum redirections to follow for a resource"),
	)

	flagSet.CreateGroup("retry", "Retry and pacing",
		flagSet.IntVarP(&opts.Tries, "tries", "t", 20, "number of attempts per job"),
		flagSet.IntVarP(&opts.Wait, "wait", "w", 0, "seconds to wait between retrievals (parsed, not applied)"),
		flagSet.IntVar(&opts.WaitRetry, "waitretry", 10, "seconds to wait between retries of failed retrievals"),
		flagSet.BoolVar(&opts.RandomWait, "random-wait", false, "randomize each --waitretry delay to 0.5x-1.5x of its value"),
	)

	flagSet.CreateGroup("chunked", "Chunked and Metalink downloads",
		flagSet.StringVar(&opts.ChunkSize, "chunk-size", "", "split downloads above this size into parts (e.g. 1MiB)"),
		flagSet.BoolVar(&opts.Metalink, "metalink", false, "treat the response as a Metalink document"),
	)

	flagSet.CreateGroup("output", "Output handling",
		flagSet.BoolVarP(&opts.Timestamping, "timestamping", "N", false, "don't re-retrieve files unless newer than local"),
		flagSet.BoolVarP(&opts.Continue, "continue", "c", false, "resume getting a partially-downloaded file"),
		flagSet.BoolVar(&opts.NoClobber, "no-clobber", false, "skip downloads that would overwrite existing files"),
		flagSet.StringVarP(&opts.OutputDir, "directory-prefix", "P", ".", "save files to this directory prefix"),
		flagSet.StringVar(&opts.Quota, "quota", "", "overall download quota (e.g. 100MiB)"),
	)

	flagSet.CreateGroup("connection", "Connection",
		flagSet.IntVar(&opts.Threads, "threads", 5, "number of concurrent download workers"),
		flagSet.IntVar(&opts.DNSTimeout, "dns-timeout", 5, "DNS lookup timeout in seconds (parsed, not applied; lookups run under --connect-timeout)"),
		flagSet.IntVar(&opts.ConnectTimeout, "connect-timeout", 10, "TCP connect timeout in seconds"),
		flagSet.IntVar(&opts.ReadTimeout, "read-timeout", 30, "read timeout in seconds"),
		flagSet.BoolVar(&opts.DoH, "doh", false, "resolve hostnames via DNS-over-HTTPS instead of the system resolver"),
		flagSet.StringVar(&opts.DoHURL, "doh-url", "https://cloudflare-dns.com/dns-query", "DNS-over-HTTPS endpoint (parsed, not used; --doh queries the Cloudflare, Google and Quad9 providers)"),
		flagSet.BoolVarP(&opts.Inet4Only, "inet4-only", "4", false, "connect only to IPv4 addresses"),
		flagSet.BoolVarP(&opts.Inet6Only, "inet6-only", "6", false, "connect only to IPv6 addresses"),
	)

	flagSet.CreateGroup("request", "Request identity",
		flagSet.StringVar(&opts.UserAgent, "user-agent", "go-wget/1.0", "User-Agent header to send"),
		flagSet.StringVar(&opts.Referer, "referer", "", "Referer header for seed requests (parsed, not sent)"),
		flagSet.StringSliceVar(&opts.Headers, "header", nil, "extra header, 'Name: Value' (repeatable; parsed, not sent)", goflags.StringSliceOptions),
		flagSet.StringVar(&opts.User, "user", "", "username for HTTP authentication"),
		flagSet.StringVar(&opts.Password, "password", "", "password for HTTP authentication"),
	)

	flagSet.CreateGroup("behavior", "Behavior",
		flagSet.BoolVar(&opts.NoRobots, "no-robots", false, "ignore robots.txt restrictions (parsed, not applied; robots.txt is always fetched and obeyed)"),
		flagSet.BoolVar(&opts.Spider, "spider", false, "don't download anything, just check the URLs exist"),
		flagSet.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging"),
		flagSet.BoolVarP(&opts.Debug, "debug", "d", false, "debug logging"),
	)

	if err := flagSet.Parse(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Resolve merges Options over wgetconfig.DefaultConfig, producing the
// fully resolved Config the controller builds its components from.
func (o *Options) Resolve() wgetconfig.Config {
	cfg := wgetconfig.DefaultConfig()

	cfg.Seeds = []string(o.Seeds)
	cfg.InputFile = o.InputFile

	cfg.Recursive = o.Recursive
	if o.Level > 0 {
		cfg.Level = o.Level
	}
	cfg.NoParent = o.NoParent
	cfg.SpanHosts = o.SpanHosts
	cfg.IncludeDomains = []string(o.IncludeDomains)
	cfg.ExcludeDomains = []string(o.ExcludeDomains)
	cfg.HTTPSOnly = o.HTTPSOnly
	cfg.HTTPSEnforce = wgetconfig.ParseHTTPSEnforce(o.HTTPSEnforce)
	cfg.PageRequisites = o.PageRequisites
	if o.MaxRedirect > 0 {
		cfg.MaxRedirect = o.MaxRedirect
	}

	if o.Tries > 0 {
		cfg.Tries = o.Tries
	}
	cfg.Wait = time.Duration(o.Wait) * time.Second
	if o.WaitRetry > 0 {
		cfg.WaitRetry = time.Duration(o.WaitRetry) * time.Second
	}
	cfg.RandomWait = o.RandomWait

	if n, err := parseByteSize(o.ChunkSize); err == nil && n > 0 {
		cfg.ChunkSize = n
	}
	cfg.Metalink = o.Metalink

	cfg.Clobber = resolveClobberPolicy(o)
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}

	if n, err := parseByteSize(o.Quota); err == nil {
		cfg.Quota = n
	}
	if o.Threads > 0 {
		cfg.Threads = o.Threads
	}

	if o.DNSTimeout != 0 {
		cfg.DNSTimeout = time.Duration(o.DNSTimeout) * time.Second
	}
	if o.ConnectTimeout != 0 {
		cfg.ConnectTimeout = time.Duration(o.ConnectTimeout) * time.Second
	}
	if o.ReadTimeout != 0 {
		cfg.ReadTimeout = time.Duration(o.ReadTimeout) * time.Second
	}

	if o.UserAgent != "" {
		cfg.UserAgent = o.UserAgent
	}
	cfg.Referer = o.Referer
	cfg.Headers = []string(o.Headers)
	cfg.User = o.User
	cfg.Password = o.Password

	cfg.RespectRobots = !o.NoRobots
	cfg.Spider = o.Spider

	cfg.DoH = o.DoH
	cfg.DoHURL = o.DoHURL

	switch {
	case o.Inet4Only:
		cfg.PreferFamily = dnscache.FamilyIPv4
		cfg.StrictFamily = true
	case o.Inet6Only:
		cfg.PreferFamily = dnscache.FamilyIPv6
		cfg.StrictFamily = true
	}

	return cfg
}

// resolveClobberPolicy applies wget's precedence among the mutually
// exclusive collision flags: --continue wins over -N, which wins over
// --no-clobber, which wins over the default overwrite behavior.
func resolveClobberPolicy(o *Options) saver.ClobberPolicy {
	switch {
	case o.Continue:
		return saver.ClobberContinue
	case o.Timestamping:
		return saver.ClobberTimestamp
	case o.NoClobber:
		return saver.ClobberNone
	default:
		return saver.ClobberOverwrite
	}
}
