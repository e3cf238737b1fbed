package cliopts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"2048", 2048},
		{"1MiB", 1024 * 1024},
		{"100k", 100 * 1000},
		{"2GiB", 2 * 1024 * 1024 * 1024},
	}
	for _, c := range cases {
		got, err := parseByteSize(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	_, err := parseByteSize("not-a-size")
	assert.Error(t, err)
}

func TestResolveClobberPolicy_ContinueWinsOverTimestampingAndNoClobber(t *testing.T) {
	o := &Options{Continue: true, Timestamping: true, NoClobber: true}
	assert.Equal(t, resolveClobberPolicy(o), resolveClobberPolicy(&Options{Continue: true}))
}

func TestOptions_Resolve_AppliesDefaultsWhenUnset(t *testing.T) {
	o := &Options{}
	cfg := o.Resolve()
	assert.Equal(t, 5, cfg.Level)
	assert.Equal(t, 20, cfg.Tries)
	assert.Equal(t, 5, cfg.Threads)
	assert.True(t, cfg.RespectRobots)
}

func TestOptions_Resolve_NoRobotsDisablesRespectRobots(t *testing.T) {
	o := &Options{NoRobots: true}
	cfg := o.Resolve()
	assert.False(t, cfg.RespectRobots)
}
