// Package errtax defines the error taxonomy shared by every coordinator
// component and the process exit status derived from it.
package errtax

import (
	"github.com/projectdiscovery/utils/errkit"
)

// Kind identifies one of the error classes from the downloader's error
// taxonomy. Each Kind carries the exit code it maps to.
type Kind struct {
	errkit.ErrKind
	name     string
	exitCode int
}

func (k Kind) ExitCode() int { return k.exitCode }
func (k Kind) String() string { return k.name }

func newKind(name string, exitCode int) Kind {
	return Kind{
		ErrKind:  errkit.NewPrimitiveErrKind(name, name, nil),
		name:     name,
		exitCode: exitCode,
	}
}

// Exit code taxonomy (spec.md §6). Lowest non-zero code wins.
const (
	ExitSuccess        = 0
	ExitGeneric        = 1
	ExitParseInit      = 2
	ExitIO             = 3
	ExitNetwork        = 4
	ExitTLS            = 5
	ExitAuth           = 6
	ExitProtocol       = 7
	ExitRemoteMissing  = 8
	ExitSignatureFail  = 9
)

var (
	KindInput           = newKind("input", ExitParseInit)
	KindDNSTransient     = newKind("dns-transient", ExitNetwork)
	KindDNSPermanent     = newKind("dns-permanent", ExitNetwork)
	KindConnect          = newKind("connect", ExitNetwork)
	KindTLSHandshake     = newKind("tls-handshake", ExitTLS)
	KindTLSCertValidate  = newKind("tls-cert-validation", ExitTLS)
	KindHTTPProtocol     = newKind("http-protocol", ExitProtocol)
	KindAuth             = newKind("auth", ExitAuth)
	KindRemoteMissing    = newKind("remote-missing", ExitRemoteMissing)
	KindRedirectTooMany  = newKind("redirect-too-many", ExitProtocol)
	KindRobotsDisallowed = newKind("robots-disallowed", ExitSuccess) // informational, not an error
	KindIO               = newKind("io", ExitIO)
	KindQuotaExceeded    = newKind("quota-exceeded", ExitGeneric)
	KindIntegrity        = newKind("integrity", ExitSignatureFail)
	KindCancelled        = newKind("cancelled", ExitGeneric)
)

// New builds an errkit error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) error {
	b := errkit.New(format, args...).SetKind(k.ErrKind)
	return b.Build()
}

// Wrap attaches a Kind to an existing error.
func Wrap(k Kind, err error) error {
	if err == nil {
		return nil
	}
	return errkit.FromError(err).ResetKind().SetKind(k.ErrKind).Build()
}

// KindOf recovers the Kind attached to err, if any, and whether one was found.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return Kind{}, false
	}
	ex := errkit.FromError(err)
	got := ex.Kind()
	for _, k := range allKinds {
		if k.ErrKind == got {
			return k, true
		}
	}
	return Kind{}, false
}

var allKinds = []Kind{
	KindInput, KindDNSTransient, KindDNSPermanent, KindConnect,
	KindTLSHandshake, KindTLSCertValidate, KindHTTPProtocol, KindAuth,
	KindRemoteMissing, KindRedirectTooMany, KindRobotsDisallowed,
	KindIO, KindQuotaExceeded, KindIntegrity, KindCancelled,
}

// ExitCodeFor returns the exit code that err should contribute, or
// ExitGeneric if err carries no recognised Kind.
func ExitCodeFor(err error) int {
	if k, ok := KindOf(err); ok {
		return k.ExitCode()
	}
	return ExitGeneric
}
