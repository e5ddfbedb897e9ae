package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Remote runs commands over a persistent SSH connection.
//
// Lifecycle: the connection is acquired lazily by the first Run and reused by
// later runs; Close releases it. A Run that finds the connection broken drops
// it so the following Run reconnects. Remote is not meant for concurrent Run
// calls; the mutex only guards the connection handle against Close.
type Remote struct {
	conn *connector

	mu     sync.Mutex
	client *ssh.Client
}

var _ Backend = (*Remote)(nil)

const keepaliveTimeout = 2 * time.Second

func NewRemote(cfg Config) (*Remote, error) {
	conn, err := newConnector(cfg)
	if err != nil {
		return nil, err
	}
	return &Remote{conn: conn}, nil
}

func (r *Remote) Name() string { return "ssh://" + r.conn.addr }

// Connected reports whether a connection is currently held.
func (r *Remote) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

func (r *Remote) Run(ctx context.Context, command string, timeout time.Duration) Outcome {
	timeout = effectiveTimeout(timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.connection(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failed(fmt.Errorf("%w: %w", timeoutError(timeout), err))
		}
		return failed(err)
	}

	// opening a session waits for the peer; a stalled peer must not outlive ctx
	opened := make(chan sessionResult, 1)
	go func() {
		sess, err := client.NewSession()
		opened <- sessionResult{sess, err}
	}()

	var sess *ssh.Session
	select {
	case o := <-opened:
		if o.err != nil {
			r.drop(client)
			return failed(fmt.Errorf("open session on %s: %w", r.conn.addr, o.err))
		}
		sess = o.sess
	case <-ctx.Done():
		r.drop(client)
		go func() {
			if o := <-opened; o.sess != nil {
				o.sess.Close()
			}
		}()
		return interrupted(ctx, timeout)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		return r.finish(client, err, stdout.String(), stderr.String())
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		if !alive(client, keepaliveTimeout) {
			r.drop(client)
		}
		return interrupted(ctx, timeout)
	}
}

type sessionResult struct {
	sess *ssh.Session
	err  error
}

func interrupted(ctx context.Context, timeout time.Duration) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failed(timeoutError(timeout))
	}
	return failed(fmt.Errorf("command canceled: %w", ctx.Err()))
}

// alive sends an OpenSSH keepalive and waits at most d for any reply.
func alive(client *ssh.Client, d time.Duration) bool {
	replied := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		replied <- err
	}()
	select {
	case err := <-replied:
		return err == nil
	case <-time.After(d):
		return false
	}
}

func (r *Remote) finish(client *ssh.Client, err error, stdout, stderr string) Outcome {
	if err == nil {
		return completed(0, stdout, stderr)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return completed(exitErr.ExitStatus(), stdout, stderr)
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return failed(fmt.Errorf("remote command on %s exited without status: %w", r.conn.addr, err))
	}
	r.drop(client)
	return failed(fmt.Errorf("run command on %s: %w", r.conn.addr, err))
}

func (r *Remote) connection(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := r.conn.Connect(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// drop forgets client if it is still the current connection.
func (r *Remote) drop(client *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == client {
		_ = r.client.Close()
		r.client = nil
	}
}

// Close releases the connection. Safe to call repeatedly or before any Run.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection to %s: %w", r.conn.addr, err)
	}
	return nil
}
