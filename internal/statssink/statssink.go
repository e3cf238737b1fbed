// Package statssink defines the callback-style statistics hooks the
// coordinator invokes as it works, per DESIGN NOTES §9. Callers supply
// an implementation; NoOp is the default.
package statssink

import "time"

type Sink interface {
	DNSResolved(host string, d time.Duration)
	TCPConnected(host string, d time.Duration)
	TLSDone(host string, d time.Duration)
	ResponseReceived(url string, status int, bytes int64)
}

type noop struct{}

func (noop) DNSResolved(string, time.Duration)          {}
func (noop) TCPConnected(string, time.Duration)         {}
func (noop) TLSDone(string, time.Duration)              {}
func (noop) ResponseReceived(string, int, int64)        {}

// NoOp is the default Sink: every event is dropped.
var NoOp Sink = noop{}
