package executor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy decides which remote host keys are trusted.
type HostKeyPolicy string

const (
	// HostKeyAutoAccept accepts any host key without recording it.
	// INSECURE: a man-in-the-middle can impersonate the target and capture
	// credentials. This is the default policy; prefer HostKeyTOFU or HostKeyStrict.
	HostKeyAutoAccept HostKeyPolicy = "auto-accept"
	// HostKeyTOFU trusts a host the first time it is seen, appends its key
	// to the known_hosts file and rejects changed keys afterwards.
	HostKeyTOFU HostKeyPolicy = "tofu"
	// HostKeyStrict only accepts keys already present in known_hosts.
	HostKeyStrict HostKeyPolicy = "strict"
)

var ErrUnknownHostKeyPolicy = errors.New("unknown host key policy")

func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(s); p {
	case "":
		return HostKeyAutoAccept, nil
	case HostKeyAutoAccept, HostKeyTOFU, HostKeyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownHostKeyPolicy, s)
	}
}

// DefaultKnownHostsFile returns ~/.ssh/known_hosts.
func DefaultKnownHostsFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

func hostKeyCallback(policy HostKeyPolicy, knownHostsFile string) (ssh.HostKeyCallback, error) {
	if policy == "" || policy == HostKeyAutoAccept {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if knownHostsFile == "" {
		path, err := DefaultKnownHostsFile()
		if err != nil {
			return nil, err
		}
		knownHostsFile = path
	}

	switch policy {
	case HostKeyStrict:
		cb, err := knownhosts.New(knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", knownHostsFile, err)
		}
		return cb, nil
	case HostKeyTOFU:
		return trustOnFirstUse(knownHostsFile)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHostKeyPolicy, policy)
	}
}

func trustOnFirstUse(path string) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create known hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open known hosts %s: %w", path, err)
	}
	f.Close()

	var mu sync.Mutex
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		mu.Lock()
		defer mu.Unlock()

		// re-read so keys learned by earlier connections are honoured
		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("load known hosts %s: %w", path, err)
		}
		err = check(hostname, remote, key)

		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, key)
		}
		return err
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known hosts %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, knownhosts.Line([]string{hostname}, key)); err != nil {
		return fmt.Errorf("record host key for %s: %w", hostname, err)
	}
	return nil
}
