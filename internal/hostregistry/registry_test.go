package hostregistry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReadyUntilFailure(t *testing.T) {
	r := New(3, 10*time.Millisecond, time.Second)
	assert.Equal(t, StatusReady, r.Status("example.com"))

	r.RecordFailure("example.com")
	assert.Equal(t, StatusBackoff, r.Status("example.com"))
}

func TestRegistry_BackoffExpires(t *testing.T) {
	r := New(5, 5*time.Millisecond, time.Second)
	r.RecordFailure("example.com")
	require.Equal(t, StatusBackoff, r.Status("example.com"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusReady, r.Status("example.com"))
}

func TestRegistry_BlacklistedAtCeiling(t *testing.T) {
	r := New(3, time.Nanosecond, time.Nanosecond)
	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	assert.Equal(t, StatusBlacklisted, r.Status("example.com"))
}

func TestRegistry_SuccessClearsFailures(t *testing.T) {
	r := New(3, time.Nanosecond, time.Nanosecond)
	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	r.RecordSuccess("example.com")
	assert.Equal(t, StatusReady, r.Status("example.com"))
}

func TestRegistry_MarkFinalSurvivesRecordSuccess(t *testing.T) {
	r := New(3, time.Nanosecond, time.Nanosecond)
	r.MarkFinal("example.com")
	assert.Equal(t, StatusBlacklisted, r.Status("example.com"))

	r.RecordSuccess("example.com")
	assert.Equal(t, StatusBlacklisted, r.Status("example.com"), "a final mark must survive a later success, unlike the failure-counter blacklist")
}

func TestRegistry_RobotsPrerequisite(t *testing.T) {
	r := New(0, 0, 0)
	assert.True(t, r.NeedsRobots("example.com"))

	r.SetRobotsPolicy("example.com", &RobotsPolicy{Disallow: []string{"/private"}})
	assert.False(t, r.NeedsRobots("example.com"))
	assert.Equal(t, []string{"/private"}, r.RobotsPolicy("example.com").Disallow)
}

func TestParseRobots_WildcardGroup(t *testing.T) {
	body := `
User-agent: *
Disallow: /private
Allow: /private/public
Crawl-delay: 2
`
	policy := ParseRobots(strings.NewReader(body), "go-wget")
	require.NotNil(t, policy)
	assert.False(t, policy.Allowed("/private/secret"))
	assert.True(t, policy.Allowed("/private/public"))
	assert.True(t, policy.Allowed("/open"))
	assert.Equal(t, 2*time.Second, policy.CrawlDelay)
}

func TestParseRobots_SpecificAgentOverridesWildcard(t *testing.T) {
	body := `
User-agent: *
Disallow: /

User-agent: go-wget
Disallow: /only-this
`
	policy := ParseRobots(strings.NewReader(body), "go-wget")
	require.NotNil(t, policy)
	assert.True(t, policy.Allowed("/anything"))
	assert.False(t, policy.Allowed("/only-this/path"))
}
