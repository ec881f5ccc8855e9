// Package fingerprint derives stable cache addresses from a computation's
// owner identity and its arguments.
//
// The default scheme encodes every input into a tagged, length-prefixed byte
// stream and digests it with SHA-256. The encoding only depends on argument
// values, never on process-local state such as pointer addresses or map
// iteration order, so a fingerprint computed today addresses the same
// artifact after a restart.
package fingerprint

import (
	"errors"

	"github.com/opencontainers/go-digest"
)

// ErrUnsupportedArg is returned when an argument has no deterministic encoding.
// Implement Encoder on the argument type to make it fingerprintable.
var ErrUnsupportedArg = errors.New("fingerprint: unsupported argument type")

// Fingerprint addresses an artifact. Fingerprints produced by the default
// scheme are 64 lowercase hex characters.
type Fingerprint string

// String returns the fingerprint as a plain string.
func (f Fingerprint) String() string {
	return string(f)
}

// KW holds keyword arguments. Keyword order never affects the fingerprint.
type KW map[string]any

// Computer derives fingerprints.
type Computer interface {
	Compute(owner string, args []any, kwargs KW) (Fingerprint, error)
}

// Func adapts an ordinary function to a Computer. It is the override path for
// callers whose arguments need a domain-specific encoding.
type Func func(owner string, args []any, kwargs KW) (Fingerprint, error)

// Compute calls f.
func (f Func) Compute(owner string, args []any, kwargs KW) (Fingerprint, error) {
	return f(owner, args, kwargs)
}

// Default is the SHA-256 canonical scheme.
var Default Computer = Func(Compute)

// Compute fingerprints (owner, args, kwargs) with the default scheme.
//
// Positional arguments are order-sensitive; keyword arguments are sorted by
// name first. See Encoder for the set of natively supported argument types.
func Compute(owner string, args []any, kwargs KW) (Fingerprint, error) {
	buf, err := appendCanonical(nil, owner, args, kwargs)
	if err != nil {
		return "", err
	}
	d := digest.SHA256.Digester()
	_, _ = d.Hash().Write(buf)
	return Fingerprint(d.Digest().Encoded()), nil
}
