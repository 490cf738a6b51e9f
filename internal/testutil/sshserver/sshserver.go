// Package sshserver provides an in-process SSH server for integration
// testing of the remote executor. Exec requests are dispatched to a
// scripted handler which decides the stdout and exit code, so tests can
// fake any remote command without a real server.
package sshserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Handler decides the result of one exec request. stdin contains
// everything the client streamed to the command.
type Handler func(command string, stdin []byte) (stdout string, exitCode int)

// Server is an in-process SSH server for testing.
type Server struct {
	t    testing.TB
	opts Options

	config   *ssh.ServerConfig
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	commands []Command
}

// Command records one exec request the server received.
type Command struct {
	Command string
	Stdin   string
}

// Options configures the test SSH server.
type Options struct {
	Username       string          // Required
	AuthorizedKeys []ssh.PublicKey // Required; pubkey is the only supported auth
	HostKey        ssh.Signer      // Generated if nil
	Handler        Handler         // Defaults to echoing the command with exit 0
}

// New creates a test SSH server. Call Start() to begin listening.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.Username == "" {
		t.Fatal("sshserver: Username is required")
	}
	if len(opts.AuthorizedKeys) == 0 {
		t.Fatal("sshserver: AuthorizedKeys is required")
	}
	if opts.Handler == nil {
		opts.Handler = func(command string, stdin []byte) (string, int) {
			return command, 0
		}
	}

	return &Server{
		t:    t,
		opts: opts,
		done: make(chan struct{}),
	}
}

// Start begins listening on a random loopback port.
func (s *Server) Start() {
	s.t.Helper()

	hostKey := s.opts.HostKey
	if hostKey == nil {
		hostKey = generateED25519Key(s.t)
	}

	s.config = &ssh.ServerConfig{}
	s.config.AddHostKey(hostKey)
	s.config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		if conn.User() != s.opts.Username {
			return nil, fmt.Errorf("unknown user %q", conn.User())
		}
		keyBytes := key.Marshal()
		for _, authorized := range s.opts.AuthorizedKeys {
			if bytes.Equal(keyBytes, authorized.Marshal()) {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("unknown public key")
	}

	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("sshserver: failed to listen: %v", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and waits for all connections to finish.
// Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.listener.Close()
		s.wg.Wait()
	})
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Commands returns a copy of all exec requests received so far.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.t.Logf("sshserver: accept error: %v", err)
			}
			return
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		// Authentication failures are expected in tests
		s.t.Logf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		s.wg.Add(1)
		go s.handleSession(newChan)
	}
}

// execPayload is the RFC 4254 payload of an exec request.
type execPayload struct {
	Command string
}

func (s *Server) handleSession(newChan ssh.NewChannel) {
	defer s.wg.Done()

	ch, reqs, err := newChan.Accept()
	if err != nil {
		s.t.Logf("sshserver: failed to accept session: %v", err)
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload execPayload
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			s.runExec(ch, payload.Command)
			return
		case "env":
			req.Reply(true, nil)
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) runExec(ch ssh.Channel, command string) {
	// The client closes its side after streaming stdin, so this returns
	// promptly even for commands with no input.
	stdin, _ := io.ReadAll(ch)

	s.mu.Lock()
	s.commands = append(s.commands, Command{Command: command, Stdin: string(stdin)})
	s.mu.Unlock()

	stdout, exitCode := s.opts.Handler(command, stdin)
	if stdout != "" {
		ch.Write([]byte(stdout))
	}

	status := struct{ Status uint32 }{uint32(exitCode)}
	ch.SendRequest("exit-status", false, ssh.Marshal(&status))
	ch.CloseWrite()
}

func generateED25519Key(t testing.TB) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate ED25519 key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create signer: %v", err)
	}

	return signer
}

// GenerateClientKeyPair generates a temporary ED25519 keypair for testing.
// Returns the public key and the path to the private key file.
func GenerateClientKeyPair(t testing.TB, dir string) (ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate client key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create client signer: %v", err)
	}

	keyPath := filepath.Join(dir, "id_ed25519_test")
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("sshserver: failed to marshal private key: %v", err)
	}

	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("sshserver: failed to write private key: %v", err)
	}

	return signer.PublicKey(), keyPath
}
