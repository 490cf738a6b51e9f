package rpc

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fakeExecutor scripts the curl command's result.
type fakeExecutor struct {
	ok     bool
	output string

	lastCommand string
	lastTimeout time.Duration
}

func (f *fakeExecutor) Run(ctx context.Context, command string, timeout time.Duration, retries int) (bool, string) {
	f.lastCommand = command
	f.lastTimeout = timeout
	return f.ok, f.output
}

func (f *fakeExecutor) RunInput(ctx context.Context, command, input string, timeout time.Duration, retries int) (bool, string) {
	return f.Run(ctx, command, timeout, retries)
}

func TestCallBuildsEnvelope(t *testing.T) {
	exec := &fakeExecutor{ok: true, output: `{"jsonrpc":"2.0","id":1,"result":42}`}
	client := NewClient(exec, "http://127.0.0.1:9944")

	result, ok := client.Call(context.Background(), "system_accountNextIndex", []any{"5Grw"}, 10*time.Second)
	if !ok {
		t.Fatal("Call failed")
	}
	if string(result) != "42" {
		t.Errorf("result = %s, want 42", result)
	}

	cmd := exec.lastCommand
	for _, want := range []string{
		`"jsonrpc":"2.0"`,
		`"method":"system_accountNextIndex"`,
		`"params":["5Grw"]`,
		"--max-time 10",
		"http://127.0.0.1:9944",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q: %s", want, cmd)
		}
	}
	if exec.lastTimeout != 15*time.Second {
		t.Errorf("outer timeout = %v, want rpc timeout + 5s", exec.lastTimeout)
	}
}

func TestCallAbsence(t *testing.T) {
	tests := []struct {
		name   string
		ok     bool
		output string
	}{
		{"transport failure", false, ""},
		{"empty output", true, ""},
		{"malformed json", true, "<html>bad gateway</html>"},
		{"null result", true, `{"jsonrpc":"2.0","id":1,"result":null}`},
		{"error response", true, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{ok: tt.ok, output: tt.output}
			client := NewClient(exec, "http://127.0.0.1:9944")

			if _, ok := client.Call(context.Background(), "anything", nil, time.Second); ok {
				t.Error("Call reported success, want absence")
			}
		})
	}
}

func TestAccountNextIndex(t *testing.T) {
	exec := &fakeExecutor{ok: true, output: `{"jsonrpc":"2.0","id":1,"result":1234}`}
	client := NewClient(exec, "http://127.0.0.1:9944")

	nonce, ok := client.AccountNextIndex(context.Background(), "5Grw")
	if !ok || nonce != 1234 {
		t.Errorf("AccountNextIndex = (%d, %v), want (1234, true)", nonce, ok)
	}
}

func TestAccountNextIndexMalformedResult(t *testing.T) {
	exec := &fakeExecutor{ok: true, output: `{"jsonrpc":"2.0","id":1,"result":"not-a-number"}`}
	client := NewClient(exec, "http://127.0.0.1:9944")

	if _, ok := client.AccountNextIndex(context.Background(), "5Grw"); ok {
		t.Error("want absence for a non-numeric nonce")
	}
}

func TestTrieMigrationStatus(t *testing.T) {
	exec := &fakeExecutor{ok: true, output: `{"jsonrpc":"2.0","id":1,"result":{"topRemainingToMigrate":98765,"childRemainingToMigrate":0}}`}
	client := NewClient(exec, "http://127.0.0.1:9944")

	keys, ok := client.TrieMigrationStatus(context.Background())
	if !ok || keys != 98765 {
		t.Errorf("TrieMigrationStatus = (%d, %v), want (98765, true)", keys, ok)
	}
}

func TestTrieMigrationStatusMissingField(t *testing.T) {
	exec := &fakeExecutor{ok: true, output: `{"jsonrpc":"2.0","id":1,"result":{"childRemainingToMigrate":0}}`}
	client := NewClient(exec, "http://127.0.0.1:9944")

	if _, ok := client.TrieMigrationStatus(context.Background()); ok {
		t.Error("want absence when topRemainingToMigrate is missing")
	}
}

func TestShellQuote(t *testing.T) {
	quoted := shellQuote(`{"note":"it's quoted"}`)
	if !strings.Contains(quoted, `'\''`) {
		t.Errorf("shellQuote left a raw single quote: %s", quoted)
	}
}
