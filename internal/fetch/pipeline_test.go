package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-wget/internal/blacklist"
	"go-wget/internal/errtax"
	"go-wget/internal/hostregistry"
	"go-wget/internal/jobqueue"
	"go-wget/internal/partscheduler"
	"go-wget/internal/saver"
	"go-wget/internal/urlcanon"
)

func mustParse(t *testing.T, raw string) urlcanon.URL {
	t.Helper()
	u, err := urlcanon.Parse(raw)
	require.NoError(t, err)
	return u
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func newTestPipeline(t *testing.T, srv *httptest.Server, recursion RecursionOptions) (*Pipeline, *jobqueue.Queue, *hostregistry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	registry := hostregistry.New(0, 0, 0)
	u := mustParse(t, srv.URL+"/")
	registry.SetRobotsPolicy(u.HostPort(), nil)

	queue := jobqueue.New(registry)
	p := NewPipeline(PipelineOptions{
		Client:        newTestClient(t),
		Registry:      registry,
		Blacklist:     blacklist.New(),
		Queue:         queue,
		Saver:         saver.New(saver.ClobberOverwrite, dir),
		PartScheduler: partscheduler.New(),
		UserAgent:     "go-wget-test/1.0",
		MaxRedirects:  5,
		Recursion:     recursion,
	})
	return p, queue, registry, dir
}

func TestProcess_SavesBodyAndDiscoversLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><a href="/a.html">a</a><img src="/b.png"></body></html>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/index.html")
	p, queue, _, dir := newTestPipeline(t, srv, RecursionOptions{
		Recursive: true,
		Level:     2,
		SpanHosts: true,
	})

	job := &jobqueue.Job{URL: seed, HostKey: seed.HostPort()}
	outcome := p.Process(job)

	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Terminal)

	data, err := os.ReadFile(filepath.Join(dir, seed.Host+"/index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.html")

	assert.Equal(t, 2, queue.Size(), "both the href and the img src should be enqueued")
}

func TestProcess_RemoteMissingReportsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/missing.html")
	p, _, _, _ := newTestPipeline(t, srv, RecursionOptions{})

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.Error(t, outcome.Err)
	assert.True(t, outcome.Terminal)
}

func TestProcess_RedirectLoopIsTerminal(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/loop")
	p, _, _, _ := newTestPipeline(t, srv, RecursionOptions{})

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.Error(t, outcome.Err)
	assert.True(t, outcome.Terminal)
}

func TestProcess_ChunkSizeDispatchesPartJobs(t *testing.T) {
	body := make([]byte, 30)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "30")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/big.bin")
	p, queue, _, _ := newTestPipeline(t, srv, RecursionOptions{})
	p.opts.ChunkSize = 10

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Terminal)
	assert.Equal(t, 3, queue.Size(), "30 bytes split into 10-byte chunks should dispatch 3 PART jobs")
}

func TestProcess_DigestAuthTerminatesAfterSecondChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Digest realm="test", nonce="abc123", qop="auth"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/secret")
	p, _, _, _ := newTestPipeline(t, srv, RecursionOptions{})
	p.opts.User = "user"
	p.opts.Password = "pass"

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.Error(t, outcome.Err)
	assert.True(t, outcome.Terminal, "a server that keeps challenging after a digest retry must terminate, not loop forever")

	kind, ok := errtax.KindOf(outcome.Err)
	require.True(t, ok)
	assert.Equal(t, errtax.KindAuth, kind)
}

func TestProcess_HTTPSEnforceHardMarksHostFinalOnTLSFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/x")
	p, _, registry, _ := newTestPipeline(t, srv, RecursionOptions{})
	p.opts.HTTPSEnforce = HTTPSEnforceHard

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.Error(t, outcome.Err)
	assert.True(t, outcome.Terminal, "a hard-enforced TLS failure must not be requeued")
	assert.Equal(t, hostregistry.StatusBlacklisted, registry.Status(seed.HostPort()), "the host should be permanently blocked, not just backed off")
}

func TestProcess_TimestampingSendsIfModifiedSince(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	registry := hostregistry.New(0, 0, 0)
	seed := mustParse(t, srv.URL+"/file.bin")
	registry.SetRobotsPolicy(seed.HostPort(), nil)

	localPath := filepath.Join(dir, seed.Host+"/file.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(localPath), 0o755))
	require.NoError(t, os.WriteFile(localPath, []byte("stale"), 0o644))

	p := NewPipeline(PipelineOptions{
		Client:        newTestClient(t),
		Registry:      registry,
		Blacklist:     blacklist.New(),
		Queue:         jobqueue.New(registry),
		Saver:         saver.New(saver.ClobberTimestamp, dir),
		PartScheduler: partscheduler.New(),
		UserAgent:     "go-wget-test/1.0",
		MaxRedirects:  5,
	})

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	require.NoError(t, outcome.Err)
	assert.NotEmpty(t, gotHeader, "a timestamping re-run against an existing local file must send If-Modified-Since")
}

func TestProcess_RobotsDisallowDropsJobWithoutFetching(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	seed := mustParse(t, srv.URL+"/private/page.html")
	p, _, registry, _ := newTestPipeline(t, srv, RecursionOptions{})
	registry.SetRobotsPolicy(seed.HostPort(), hostregistry.ParseRobots(
		strings.NewReader("User-agent: *\nDisallow: /private/\n"), "go-wget-test/1.0"))

	outcome := p.Process(&jobqueue.Job{URL: seed, HostKey: seed.HostPort()})
	assert.True(t, outcome.Terminal)
	assert.Error(t, outcome.Err)
	assert.False(t, called, "a robots-disallowed URL must never be fetched")
}
