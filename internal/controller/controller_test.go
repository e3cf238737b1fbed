package controller

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-wget/internal/errtax"
	"go-wget/internal/wgetconfig"
)

func newBareController() *Controller {
	return New(wgetconfig.DefaultConfig(), nil)
}

func TestSetStatus_LowestCodeWins(t *testing.T) {
	c := newBareController()

	c.setStatus(errtax.ExitIO)
	c.setStatus(errtax.ExitNetwork)
	assert.Equal(t, errtax.ExitIO, c.ExitStatus(), "a higher code must not overwrite a lower one already set")

	c.setStatus(errtax.ExitParseInit)
	assert.Equal(t, errtax.ExitParseInit, c.ExitStatus(), "a lower code must overwrite a higher one")
}

func TestSetStatus_FirstNonZeroWins(t *testing.T) {
	c := newBareController()
	assert.Equal(t, errtax.ExitSuccess, c.ExitStatus())

	c.setStatus(errtax.ExitGeneric)
	assert.Equal(t, errtax.ExitGeneric, c.ExitStatus())
}

func TestSetStatus_ConcurrentCallsConvergeOnLowest(t *testing.T) {
	c := newBareController()
	codes := []int{errtax.ExitTLS, errtax.ExitAuth, errtax.ExitIO, errtax.ExitNetwork, errtax.ExitProtocol}

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			c.setStatus(code)
		}(code)
	}
	wg.Wait()

	assert.Equal(t, errtax.ExitIO, c.ExitStatus(), "the lowest exit code among all set-status calls must win")
}

func TestQuotaSink_ResponseReceivedAccumulatesBytes(t *testing.T) {
	c := newBareController()
	sink := c.quotaTrackingSink()

	sink.ResponseReceived("http://example.com/a", 200, 100)
	sink.ResponseReceived("http://example.com/b", 200, 250)

	assert.Equal(t, int64(350), c.bytesLoaded.Load())
}

func TestStartInput_EmptyInputFileClosesQueueImmediately(t *testing.T) {
	c := newBareController()
	done := c.startInput(nil)
	assert.Nil(t, done)
	assert.True(t, c.queue.Empty())
}
