package fetch

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/httpx/common/httpx"
	retryablehttp "github.com/projectdiscovery/retryablehttp-go"

	"go-wget/internal/blacklist"
	"go-wget/internal/errtax"
	"go-wget/internal/hostregistry"
	"go-wget/internal/jobqueue"
	"go-wget/internal/partscheduler"
	"go-wget/internal/progresssink"
	"go-wget/internal/saver"
	"go-wget/internal/statssink"
	"go-wget/internal/urlcanon"
)

// HTTPSEnforce mirrors wgetconfig.HTTPSEnforce's ordinals without
// importing that package, which itself imports fetch for
// RecursionOptions.
type HTTPSEnforce int

const (
	HTTPSEnforceNone HTTPSEnforce = iota
	HTTPSEnforceSoft
	HTTPSEnforceHard
)

// RecursionOptions mirrors the CLI flags from spec.md §6 that gate which
// discovered links get followed (spec.md §4.5 "Recursion rules").
type RecursionOptions struct {
	Recursive     bool
	Level         int
	SpanHosts     bool
	SeedHosts     map[string]struct{}
	IncludeHosts  map[string]struct{}
	ExcludeHosts  map[string]struct{}
	NoParent      bool
	ParentDirs    []string
	HTTPSOnly     bool
	PageRequisites bool
}

// PipelineOptions bundles the Fetch Pipeline's dependencies.
type PipelineOptions struct {
	Client        *Client
	Registry      *hostregistry.Registry
	Blacklist     *blacklist.Blacklist
	Queue         *jobqueue.Queue
	Saver         *saver.Saver
	PartScheduler *partscheduler.Scheduler
	Stats         statssink.Sink
	Progress      progresssink.Sink
	Recursion     RecursionOptions
	UserAgent     string
	MaxRedirects  int
	Tries         int
	User          string
	Password      string
	ChunkSize     int64 // 0 disables HEAD-probe chunking (spec.md §4.6)
	ForceMetalink bool  // --metalink: treat every response as a Metalink document
	Spider        bool  // HEAD-only discovery, no bodies saved
	HTTPSEnforce  HTTPSEnforce
}

// Pipeline is the Fetch Pipeline component: for each popped job it
// performs the request, classifies the response, and drives save/parse/
// enqueue, per spec.md §4.5.
type Pipeline struct {
	opts PipelineOptions
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Stats == nil {
		opts.Stats = statssink.NoOp
	}
	if opts.Progress == nil {
		opts.Progress = progresssink.NoOp
	}
	return &Pipeline{opts: opts}
}

// Outcome is what Process decided to do with a job: whether to requeue
// it (transient failure), drop it (terminal), or consider it complete.
type Outcome struct {
	Requeue  bool
	Terminal bool
	Err      error
}

// Process runs one job through the pipeline. Per spec.md §4.5 step 2, a
// job carrying an in-use Part is routed to the Part Download path
// before any of the ordinary request-construction/classification
// machinery applies.
func (p *Pipeline) Process(job *jobqueue.Job) Outcome {
	if job.IsRobots {
		return p.processRobots(job)
	}

	if hasActivePart(job) {
		return p.processPart(job)
	}

	if !p.robotsAllow(job) {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindRobotsDisallowed, "robots.txt disallows %s", job.URL)}
	}

	if p.opts.Spider {
		return p.processSpider(job)
	}

	if outcome, handled := p.maybeDispatchChunks(job); handled {
		return outcome
	}

	method := http.MethodGet
	req, err := p.buildRequest(method, job)
	if err != nil {
		return Outcome{Terminal: true, Err: err}
	}

	start := time.Now()
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		p.opts.Registry.RecordFailure(job.HostKey)
		return p.classifyTransportError(job, err)
	}
	defer resp.Body.Close()

	p.opts.Stats.ResponseReceived(job.URL.String(), resp.StatusCode, resp.ContentLength)
	_ = start

	return p.classify(job, resp)
}

func (p *Pipeline) buildRequest(method string, job *jobqueue.Job) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequest(method, job.URL.String(), nil)
	if err != nil {
		return nil, errtax.Wrap(errtax.KindInput, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", p.opts.UserAgent)
	if job.Referer != nil {
		req.Header.Set("Referer", job.Referer.String())
	}
	for _, part := range job.Parts {
		if part.InUse {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", part.BytePos, part.BytePos+part.ByteLength-1))
		}
	}
	if p.opts.User != "" {
		ApplyBasic(req.Request, p.opts.User, p.opts.Password)
	}
	p.maybeSetIfModifiedSince(req, job)
	return req, nil
}

// maybeSetIfModifiedSince adds the conditional-GET header spec.md §4.5
// step 4 lists for timestamping mode: when the saver's policy is
// ClobberTimestamp and a local copy already exists, the request asks the
// origin to confirm the local file is still current (local mtime + 1s,
// matching wget's own off-by-one tolerance) rather than refetching the
// body unconditionally.
func (p *Pipeline) maybeSetIfModifiedSince(req *retryablehttp.Request, job *jobqueue.Job) {
	if p.opts.Saver == nil || p.opts.Saver.Policy != saver.ClobberTimestamp {
		return
	}
	info, err := os.Stat(p.opts.Saver.LocalPath(job))
	if err != nil {
		return
	}
	req.Header.Set("If-Modified-Since", info.ModTime().Add(time.Second).UTC().Format(http.TimeFormat))
}

// classifyTransportError distinguishes TLS handshake/certificate
// failures from a generic connect failure, per spec.md §4.1's TLS error
// kinds. Under HTTPSEnforceHard, a TLS failure against an https job is
// terminal for the host rather than retried: the host is marked final
// so no later job for it is ever dispatched again (spec.md §4.2).
func (p *Pipeline) classifyTransportError(job *jobqueue.Job, err error) Outcome {
	if kind, ok := classifyTLSError(err); ok {
		if p.opts.HTTPSEnforce == HTTPSEnforceHard && job.URL.Scheme == "https" {
			p.opts.Registry.MarkFinal(job.HostKey)
			return Outcome{Terminal: true, Err: errtax.Wrap(kind, err)}
		}
		return Outcome{Requeue: true, Err: errtax.Wrap(kind, err)}
	}
	return Outcome{Requeue: true, Err: errtax.Wrap(errtax.KindConnect, err)}
}

// classifyTLSError reports whether err is a TLS handshake or certificate
// validation failure, and which of the two.
func classifyTLSError(err error) (errtax.Kind, bool) {
	var certInvalid x509.CertificateInvalidError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certVerifyErr *tls.CertificateVerificationError
	switch {
	case errors.As(err, &certInvalid),
		errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr),
		errors.As(err, &certVerifyErr):
		return errtax.KindTLSCertValidate, true
	}

	var recordHeaderErr tls.RecordHeaderError
	if errors.As(err, &recordHeaderErr) {
		return errtax.KindTLSHandshake, true
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "certificate") {
		return errtax.KindTLSHandshake, true
	}
	return errtax.Kind{}, false
}

// hasActivePart reports whether job is a PART job dispatched by the
// Part Scheduler: exactly one of its Parts is marked in-use.
func hasActivePart(job *jobqueue.Job) bool {
	for _, part := range job.Parts {
		if part.InUse {
			return true
		}
	}
	return false
}

// processPart runs the Part Download path (spec.md §4.6): a ranged GET
// against the part's assigned mirror, handed to the Part Scheduler on
// success. A failed attempt rotates to the next mirror round-robin and
// requeues, up to the pool's own retry ceiling.
func (p *Pipeline) processPart(job *jobqueue.Job) Outcome {
	req, err := p.buildRequest(http.MethodGet, job)
	if err != nil {
		return Outcome{Terminal: true, Err: err}
	}

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return p.failPart(job, errtax.Wrap(errtax.KindConnect, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return p.failPart(job, errtax.New(errtax.KindHTTPProtocol, "%s: part fetch returned %d", job.URL, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.failPart(job, errtax.Wrap(errtax.KindIO, err))
	}

	part := job.Parts[0]
	_, err = p.opts.PartScheduler.CompletePart(job.LocalFilename, part.ID, body, part.BytePos)
	if err != nil {
		return Outcome{Terminal: true, Err: err}
	}
	p.opts.Registry.RecordSuccess(job.HostKey)
	return Outcome{Terminal: true}
}

// failPart rotates job onto the next mirror in round-robin order before
// requeuing, per spec.md §4.6's "incremented on each retry" rule.
func (p *Pipeline) failPart(job *jobqueue.Job, err error) Outcome {
	p.opts.Registry.RecordFailure(job.HostKey)
	if job.Metalink != nil && len(job.Metalink.Mirrors) > 0 {
		job.MirrorAttempt++
		mirror := partscheduler.MirrorFor(job.Metalink, 0, job.Parts[0].ID, job.MirrorAttempt)
		job.URL = mirror.URL
		job.HostKey = mirror.URL.HostPort()
	}
	return Outcome{Requeue: true, Err: err}
}

// processSpider implements spider mode: a HEAD-only existence check
// that never saves a body or discovers links.
func (p *Pipeline) processSpider(job *jobqueue.Job) Outcome {
	req, err := retryablehttp.NewRequest(http.MethodHead, job.URL.String(), nil)
	if err != nil {
		return Outcome{Terminal: true, Err: errtax.Wrap(errtax.KindInput, err)}
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		p.opts.Registry.RecordFailure(job.HostKey)
		return p.classifyTransportError(job, err)
	}
	defer resp.Body.Close()
	p.opts.Stats.ResponseReceived(job.URL.String(), resp.StatusCode, resp.ContentLength)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		p.opts.Registry.RecordSuccess(job.HostKey)
		return Outcome{Terminal: true}
	}
	p.opts.Registry.RecordFailure(job.HostKey)
	return Outcome{Terminal: true, Err: errtax.New(errtax.KindRemoteMissing, "%s: spider check failed with status %d", job.URL, resp.StatusCode)}
}

// maybeDispatchChunks implements the HEAD-probe half of spec.md §4.6:
// when chunking is enabled and the target isn't already a part or
// Metalink job, a HEAD request checks Content-Length against the
// configured chunk size and, if it's exceeded, builds a synthetic
// Metalink and dispatches PART jobs instead of a plain GET.
func (p *Pipeline) maybeDispatchChunks(job *jobqueue.Job) (Outcome, bool) {
	if p.opts.PartScheduler == nil || p.opts.ChunkSize <= 0 {
		return Outcome{}, false
	}
	if len(job.Parts) > 0 || job.Metalink != nil || job.IsRedirect {
		return Outcome{}, false
	}

	req, err := retryablehttp.NewRequest(http.MethodHead, job.URL.String(), nil)
	if err != nil {
		return Outcome{}, false
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return Outcome{}, false
	}
	resp.Body.Close()

	size := ContentLength(resp)
	if size <= p.opts.ChunkSize {
		return Outcome{}, false
	}

	ml := partscheduler.SyntheticMetalink(job, size, p.opts.ChunkSize)
	destPath := filepath.Join(p.opts.Saver.Directory, ml.Filename)
	p.opts.PartScheduler.Dispatch(p.opts.Queue, job, ml, destPath)
	p.opts.Registry.RecordSuccess(job.HostKey)
	return Outcome{Terminal: true}, true
}

// decodeBody applies Content-Encoding/charset decoding to a response
// body, per the teacher's GetResponseBodyRaw. If decoding fails, the
// raw bytes are kept rather than failing the job.
func decodeBody(raw []byte, headers http.Header) []byte {
	decoded, err := httpx.DecodeData(raw, headers)
	if err != nil {
		return raw
	}
	return decoded
}

func isMetalinkContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "metalink")
}

// classify implements spec.md §4.5 step 5: response classification.
func (p *Pipeline) classify(job *jobqueue.Job, resp *http.Response) Outcome {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return p.handleSuccess(job, resp)
	case resp.StatusCode == http.StatusPartialContent:
		return p.handleSuccess(job, resp)
	case isRedirect(resp.StatusCode):
		return p.handleRedirect(job, resp)
	case resp.StatusCode == http.StatusNotModified:
		p.opts.Registry.RecordSuccess(job.HostKey)
		return Outcome{Terminal: true}
	case resp.StatusCode == http.StatusUnauthorized:
		return p.handleUnauthorized(job, resp)
	case resp.StatusCode == http.StatusNotFound:
		p.opts.Registry.RecordSuccess(job.HostKey)
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindRemoteMissing, "%s: not found", job.URL)}
	case resp.StatusCode >= 500:
		p.opts.Registry.RecordFailure(job.HostKey)
		return Outcome{Requeue: true, Err: errtax.New(errtax.KindHTTPProtocol, "%s: server error %d", job.URL, resp.StatusCode)}
	default:
		p.opts.Registry.RecordSuccess(job.HostKey)
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindHTTPProtocol, "%s: unexpected status %d", job.URL, resp.StatusCode)}
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func (p *Pipeline) handleRedirect(job *jobqueue.Job, resp *http.Response) Outcome {
	if job.RedirectDepth >= p.opts.MaxRedirects {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindRedirectTooMany, "%s: exceeded %d redirects", job.URL, p.opts.MaxRedirects)}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindHTTPProtocol, "%s: redirect with no Location", job.URL)}
	}

	next, err := urlcanon.ResolveReference(job.URL, location)
	if err != nil {
		return Outcome{Terminal: true, Err: err}
	}
	if next.Equal(job.URL) {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindRedirectTooMany, "%s: redirect loop", job.URL)}
	}

	if p.opts.HTTPSEnforce == HTTPSEnforceHard && job.URL.Scheme == "https" && next.Scheme != "https" {
		p.opts.Registry.MarkFinal(job.HostKey)
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindTLSHandshake, "%s: refused HTTPS-to-HTTP redirect under hard enforcement", job.URL)}
	}

	if p.opts.Blacklist.TryInsert(next) {
		redirected := job.URL
		p.opts.Queue.Enqueue(&jobqueue.Job{
			URL:           next,
			Referer:       &redirected,
			RedirectDepth: job.RedirectDepth + 1,
			Recursion:     job.Recursion,
			HostKey:       next.HostPort(),
			IsRedirect:    true,
		})
	}
	p.opts.Registry.RecordSuccess(job.HostKey)
	return Outcome{Terminal: true}
}

func (p *Pipeline) handleUnauthorized(job *jobqueue.Job, resp *http.Response) Outcome {
	if job.DigestTried {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindAuth, "%s: repeated auth failure", job.URL)}
	}
	if p.opts.User == "" {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindAuth, "%s: authentication required", job.URL)}
	}

	challenges := ParseChallenges(resp)
	challenge, ok := StrongestChallenge(challenges)
	if !ok {
		return Outcome{Terminal: true, Err: errtax.New(errtax.KindAuth, "%s: no usable challenge", job.URL)}
	}

	if challenge.Scheme == "digest" {
		job.DigestTried = true
		digestResp, err := ApplyDigest(http.MethodGet, job.URL.String(), "", p.opts.User, p.opts.Password)
		if err != nil {
			return Outcome{Terminal: true, Err: errtax.Wrap(errtax.KindAuth, err)}
		}
		defer digestResp.Body.Close()
		return p.classify(job, digestResp)
	}

	// Basic was already attempted on the initial request; a second 401
	// with Basic offered is a permanent auth failure.
	return Outcome{Terminal: true, Err: errtax.New(errtax.KindAuth, "%s: basic auth rejected", job.URL)}
}

func (p *Pipeline) handleSuccess(job *jobqueue.Job, resp *http.Response) Outcome {
	p.opts.Registry.RecordSuccess(job.HostKey)

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Terminal: true, Err: errtax.Wrap(errtax.KindIO, err)}
	}
	body := decodeBody(rawBody, resp.Header)

	if metalinkURL, ok := discoverMetalinkLink(resp); ok {
		if p.opts.Blacklist.TryInsert(metalinkURL) {
			p.opts.Queue.Enqueue(&jobqueue.Job{URL: metalinkURL, HostKey: metalinkURL.HostPort(), Recursion: job.Recursion})
		}
		return Outcome{Terminal: true}
	}

	if p.opts.PartScheduler != nil && (p.opts.ForceMetalink || isMetalinkContentType(resp.Header.Get("Content-Type"))) {
		if ml, err := partscheduler.ParseMetalink(bytes.NewReader(body)); err == nil {
			destPath := filepath.Join(p.opts.Saver.Directory, ml.Filename)
			p.opts.PartScheduler.Dispatch(p.opts.Queue, job, ml, destPath)
			return Outcome{Terminal: true}
		}
	}

	if err := p.opts.Saver.Save(job, body, resp); err != nil {
		return Outcome{Terminal: true, Err: errtax.Wrap(errtax.KindIO, err)}
	}

	p.discoverAndEnqueue(job, resp, body)
	return Outcome{Terminal: true}
}

// discoverAndEnqueue dispatches the body to a content-type-appropriate
// parser, then filters and enqueues discovered links per the recursion
// rules in spec.md §4.5.
func (p *Pipeline) discoverAndEnqueue(job *jobqueue.Job, resp *http.Response, body []byte) {
	if !p.opts.Recursion.Recursive || job.Recursion >= p.opts.Recursion.Level {
		return
	}

	contentType := resp.Header.Get("Content-Type")
	links, err := ParseLinks(contentType, job.URL, body)
	if err != nil {
		return // parse errors are non-fatal per spec.md §7
	}

	for _, link := range links {
		if !p.allowRecursion(job, link) {
			continue
		}
		if p.opts.Blacklist.TryInsert(link.URL) {
			current := job.URL
			p.opts.Queue.Enqueue(&jobqueue.Job{
				URL:       link.URL,
				Referer:   &current,
				Recursion: job.Recursion + 1,
				HostKey:   link.URL.HostPort(),
			})
		}
	}
}

func (p *Pipeline) allowRecursion(job *jobqueue.Job, link DiscoveredLink) bool {
	r := p.opts.Recursion
	if job.Recursion+1 > r.Level {
		return false
	}
	if r.HTTPSOnly && link.URL.Scheme != "https" {
		return false
	}
	if !r.SpanHosts {
		if _, ok := r.SeedHosts[link.URL.Host]; !ok {
			if _, ok := r.IncludeHosts[link.URL.Host]; !ok {
				return false
			}
		}
	}
	if _, excluded := r.ExcludeHosts[link.URL.Host]; excluded {
		return false
	}
	if r.NoParent && !withinParent(link.URL.Path, r.ParentDirs) {
		return false
	}
	if job.Recursion+1 == r.Level && !r.PageRequisites && link.InlineOnly {
		return false
	}
	if p.opts.Registry != nil {
		policy := p.opts.Registry.RobotsPolicy(link.URL.HostPort())
		if !policy.Allowed(link.URL.Path) {
			return false
		}
	}
	return true
}

func withinParent(path string, parentDirs []string) bool {
	if len(parentDirs) == 0 {
		return true
	}
	for _, dir := range parentDirs {
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

// discoverMetalinkLink implements spec.md §4.5 step 6: an RFC 6249
// describedby Link header takes precedence over a duplicate mirror.
func discoverMetalinkLink(resp *http.Response) (urlcanon.URL, bool) {
	var duplicate string
	for _, raw := range resp.Header.Values("Link") {
		rel, target := parseLinkHeader(raw)
		switch rel {
		case "describedby":
			if strings.Contains(raw, "application/metalink") {
				if u, err := urlcanon.Parse(target); err == nil {
					return u, true
				}
			}
		case "duplicate":
			if duplicate == "" {
				duplicate = target
			}
		}
	}
	if duplicate != "" {
		if u, err := urlcanon.Parse(duplicate); err == nil {
			return u, true
		}
	}
	return urlcanon.URL{}, false
}

func parseLinkHeader(raw string) (rel, target string) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return "", ""
	}
	target = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "rel=") {
			rel = strings.Trim(strings.TrimPrefix(p, "rel="), `"`)
		}
	}
	return rel, target
}

// robotsAllow enforces the robots prerequisite at the pipeline layer:
// even if the job queue let a job through, the path-level allow/deny
// check still applies.
func (p *Pipeline) robotsAllow(job *jobqueue.Job) bool {
	if p.opts.Registry == nil {
		return true
	}
	policy := p.opts.Registry.RobotsPolicy(job.HostKey)
	return policy.Allowed(job.URL.Path)
}

// processRobots fetches and parses /robots.txt, then releases the host's
// deferred jobs by recording the policy in the registry.
func (p *Pipeline) processRobots(job *jobqueue.Job) Outcome {
	req, err := retryablehttp.NewRequest(http.MethodGet, job.URL.String(), nil)
	if err != nil {
		p.opts.Registry.SetRobotsPolicy(job.HostKey, nil)
		return Outcome{Terminal: true}
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.opts.Client.Do(req)
	if err != nil || resp.StatusCode == http.StatusNotFound {
		p.opts.Registry.SetRobotsPolicy(job.HostKey, nil) // 404/failure treated as empty rules
		return Outcome{Terminal: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.opts.Registry.SetRobotsPolicy(job.HostKey, nil)
		return Outcome{Terminal: true}
	}

	policy := hostregistry.ParseRobots(resp.Body, p.opts.UserAgent)
	p.opts.Registry.SetRobotsPolicy(job.HostKey, policy)
	return Outcome{Terminal: true}
}

// ContentLength reports resp's declared body size, falling back to
// parsing the header when the transport didn't populate ContentLength.
// The Part Scheduler uses this to decide whether a response is large
// enough to chunk.
func ContentLength(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return -1
	}
	return n
}
