package executor

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "auditor"
	testPassword = "s3cret"
)

// reply is what the fake server answers for one command.
type reply struct {
	stdout string
	stderr string
	status uint32
	hang   bool
}

// testServer is a minimal SSH server that answers exec requests from a script table.
type testServer struct {
	addr    string
	hostKey ssh.Signer
	authKey atomic.Value // ssh.PublicKey
	script  map[string]reply
	conns   atomic.Int32
	// stalled connections complete the handshake and then never answer.
	stalled atomic.Bool
}

func newTestServer(t *testing.T, script map[string]reply) *testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	s := &testServer{hostKey: hostKey, script: script}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if want, ok := s.authKey.Load().(ssh.PublicKey); ok && bytes.Equal(key.Marshal(), want.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	s.addr = ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, cfg)
		}
	}()
	return s
}

// writeClientKey authorizes a fresh key and returns the path of its private half.
func (s *testServer) writeClientKey(t *testing.T) string {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	s.authKey.Store(sshPub)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func (s *testServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	s.conns.Add(1)
	if s.stalled.Load() {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only sessions")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *testServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)
		go s.exec(ch, payload.Command)
	}
}

func (s *testServer) exec(ch ssh.Channel, command string) {
	defer ch.Close()
	r, ok := s.script[command]
	if !ok {
		r = reply{stderr: "sh: " + command + ": not found\n", status: 127}
	}
	if r.hang {
		time.Sleep(3 * time.Second)
		return
	}
	_, _ = io.WriteString(ch, r.stdout)
	_, _ = io.WriteString(ch.Stderr(), r.stderr)
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{r.status}))
}

func (s *testServer) config() Config {
	return Config{
		Kind:     KindRemote,
		Host:     s.addr,
		User:     testUser,
		Password: testPassword,
	}
}
