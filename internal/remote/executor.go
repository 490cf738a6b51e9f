// Package remote runs shell commands on the server hosting the bot.
//
// All remote interaction in the monitor goes through the Executor
// interface. The SSH implementation retries transient connection
// failures with a fixed backoff; a command that ran but exited non-zero
// failed logically and is never retried.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"go.olrik.dev/migmon/internal/core"
)

// DefaultRetries is the attempt count used by callers that have no
// reason to deviate.
const DefaultRetries = 3

// retryBackoff is the fixed sleep between transient-failure attempts.
const retryBackoff = 2 * time.Second

// Executor runs a command on the remote host and reports (ok, output).
// ok is false when the command failed logically (non-zero exit, output
// still returned) or when retries were exhausted (empty output).
type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration, retries int) (bool, string)
	// RunInput is Run with data streamed to the remote command's stdin.
	// Used for the seed handoff so secrets never enter an argument list.
	RunInput(ctx context.Context, command, input string, timeout time.Duration, retries int) (bool, string)
}

// SSHExecutor is the Executor implementation backed by an SSH connection
// per command. Reconnecting per command keeps retry semantics simple and
// is cheap relative to the 60s polling cadence.
type SSHExecutor struct {
	cfg core.ServerConfig

	// Backoff between transient-failure retries. Tests shorten it.
	Backoff time.Duration
}

// NewSSHExecutor creates an executor for the configured server.
func NewSSHExecutor(cfg core.ServerConfig) *SSHExecutor {
	return &SSHExecutor{cfg: cfg, Backoff: retryBackoff}
}

// Run executes command on the remote host.
func (e *SSHExecutor) Run(ctx context.Context, command string, timeout time.Duration, retries int) (bool, string) {
	return e.RunInput(ctx, command, "", timeout, retries)
}

// RunInput executes command with input on its stdin.
func (e *SSHExecutor) RunInput(ctx context.Context, command, input string, timeout time.Duration, retries int) (bool, string) {
	if timeout <= 0 {
		timeout = e.cfg.SSHTimeout
	}
	if retries < 1 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		if ctx.Err() != nil {
			return false, ""
		}

		ok, output, transient := e.attempt(command, input, timeout)
		if !transient {
			return ok, output
		}

		// Transient connection failure; back off and try again.
		if attempt < retries-1 {
			select {
			case <-time.After(e.Backoff):
			case <-ctx.Done():
				return false, ""
			}
		}
	}
	return false, ""
}

// attempt runs the command once. transient reports whether the failure
// was at the transport level and worth retrying.
func (e *SSHExecutor) attempt(command, input string, timeout time.Duration) (ok bool, output string, transient bool) {
	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprintf("%d", e.cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false, "", true
	}
	defer conn.Close()

	// The deadline bounds the whole attempt, handshake included.
	conn.SetDeadline(time.Now().Add(timeout))

	clientConfig, err := e.clientConfig(timeout)
	if err != nil {
		// Auth material is unusable; retrying won't help.
		return false, "", false
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		return false, "", true
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return false, "", true
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if input != "" {
		session.Stdin = strings.NewReader(input)
	}

	err = session.Run(command)
	if err == nil {
		return true, strings.TrimSpace(stdout.String()), false
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		// The remote command itself failed; not a transport problem.
		return false, strings.TrimSpace(stdout.String()), false
	}

	// Connection lost, deadline hit, or channel failure.
	return false, "", true
}

// clientConfig assembles SSH auth from the agent and the optional
// identity file.
func (e *SSHExecutor) clientConfig(timeout time.Duration) (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if agentConn, err := net.Dial("unix", sock); err == nil {
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
		}
	}

	if e.cfg.IdentityFile != "" {
		keyBytes, err := os.ReadFile(e.cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity file: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	if len(auths) == 0 {
		return nil, fmt.Errorf("no SSH auth available: no agent and no identity file")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if e.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(e.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	username := e.cfg.User
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}

	return &ssh.ClientConfig{
		User:            username,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}
