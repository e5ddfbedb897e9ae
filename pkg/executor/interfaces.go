package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds a single command when the caller passes no timeout.
const DefaultTimeout = 10 * time.Second

var (
	ErrTimeout           = errors.New("command timed out")
	ErrUnknownTargetKind = errors.New("unknown target kind")
	ErrNoAuthMethod      = errors.New("no authentication method: set a password or a private key file")
)

// Backend runs opaque shell commands against one target.
// Implementations must return from Run within timeout plus a bounded overhead.
type Backend interface {
	Run(ctx context.Context, command string, timeout time.Duration) Outcome
	Close() error
	Name() string
}

// Outcome is the raw result of one Run.
// ExitStatus is nil when the command never ran; TransportErr is then set.
type Outcome struct {
	ExitStatus   *int
	Stdout       string
	Stderr       string
	TransportErr error
}

// Ran reports whether the command ran to completion.
func (o Outcome) Ran() bool {
	return o.TransportErr == nil && o.ExitStatus != nil
}

func completed(code int, stdout, stderr string) Outcome {
	return Outcome{ExitStatus: &code, Stdout: stdout, Stderr: stderr}
}

func failed(err error) Outcome {
	return Outcome{TransportErr: err}
}

func timeoutError(d time.Duration) error {
	return fmt.Errorf("%w after %s", ErrTimeout, d)
}

func effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

type TargetKind int

const (
	KindLocal TargetKind = iota
	KindRemote
)

func (k TargetKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// ParseTarget maps a target identifier to the backend kind serving it.
func ParseTarget(target string) TargetKind {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "", "localhost", "local", "127.0.0.1", "::1":
		return KindLocal
	default:
		return KindRemote
	}
}

// Config carries everything needed to build a Backend. Only Kind is used for local targets.
type Config struct {
	Kind TargetKind

	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KeyPassphrase  string
	HostKeyPolicy  HostKeyPolicy
	KnownHostsFile string

	// ConnectTimeout bounds TCP dial plus SSH handshake. Zero means DefaultTimeout.
	ConnectTimeout time.Duration
	// BreakerThreshold is the number of consecutive connect failures that opens
	// the circuit. Zero means defaultBreakerThreshold.
	BreakerThreshold uint32
	// DialRetries is the number of extra dial attempts on network errors within one Run.
	DialRetries uint64
}

// New selects the backend variant from cfg.Kind.
func New(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case KindLocal:
		return NewLocal(), nil
	case KindRemote:
		return NewRemote(cfg)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownTargetKind, cfg.Kind)
	}
}
