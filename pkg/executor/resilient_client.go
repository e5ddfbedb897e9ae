package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

const (
	defaultSSHPort          = 22
	defaultBreakerThreshold = 3
	breakerOpenTimeout      = 30 * time.Second
)

// connector dials and authenticates SSH connections for one target.
// Repeated connect failures open a circuit breaker so later runs fail fast
// instead of hammering the target with authentication attempts.
type connector struct {
	addr     string
	cfg      Config
	hostKeys ssh.HostKeyCallback
	breaker  *gobreaker.CircuitBreaker
	dialer   func(ctx context.Context, network, addr string) (net.Conn, error)
}

func newConnector(cfg Config) (*connector, error) {
	if cfg.Host == "" {
		return nil, errors.New("remote target requires a host")
	}
	if cfg.User == "" {
		return nil, errors.New("remote target requires a user")
	}
	if cfg.Password == "" && cfg.KeyFile == "" {
		return nil, ErrNoAuthMethod
	}

	hostKeys, err := hostKeyCallback(cfg.HostKeyPolicy, cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
		addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	}

	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = defaultBreakerThreshold
	}
	cbs := gobreaker.Settings{
		Name:        "ssh-connect " + addr,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	var d net.Dialer
	return &connector{
		addr:     addr,
		cfg:      cfg,
		hostKeys: hostKeys,
		breaker:  gobreaker.NewCircuitBreaker(cbs),
		dialer:   d.DialContext,
	}, nil
}

// Connect opens an authenticated client, retrying network errors up to
// cfg.DialRetries times. Authentication and host key errors are permanent.
func (c *connector) Connect(ctx context.Context) (*ssh.Client, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	return res.(*ssh.Client), nil
}

func (c *connector) connect(ctx context.Context) (*ssh.Client, error) {
	config, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	var client *ssh.Client
	operation := func() error {
		cl, err := c.dial(ctx, config)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		client = cl
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.cfg.DialRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *connector) dial(ctx context.Context, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	conn, err := c.dialer(dialCtx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	// the handshake is bounded by the same deadline as the dial
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, c.addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *connector) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auth,
		HostKeyCallback: c.hostKeys,
		Timeout:         timeout,
		BannerCallback:  func(message string) error { return nil }, //ignore banner
	}, nil
}

func (c *connector) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if c.cfg.KeyFile != "" {
		auth, err := publicKeyAuth(c.cfg.KeyFile, c.cfg.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, auth)
	}
	if c.cfg.Password != "" {
		methods = append(methods, ssh.Password(c.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return methods, nil
}

func publicKeyAuth(privateKeyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key %s: %w", privateKeyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

func newBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
}
