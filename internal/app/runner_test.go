package app

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kibankit/kiban-agent-kit/internal/model"
	"github.com/kibankit/kiban-agent-kit/internal/version"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
}

func TestVersionCommand(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)

	code := runner.Run([]string{"version"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != version.CLIVersion {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)

	code := runner.Run([]string{"definitely-not-a-command"})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	var env model.Envelope
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("stderr is not an envelope: %q", stderr.String())
	}
	if env.Success || env.Error == nil || env.Error.Type != "usage" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestToolsCommandListsCatalog(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)

	code := runner.Run([]string{"tools"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	var env model.Envelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("stdout is not an envelope: %q", stdout.String())
	}
	if !env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !strings.Contains(stdout.String(), "swap_tokens") {
		t.Fatal("catalog should include swap_tokens")
	}
}

func TestToolsCommandHonorsAllowlist(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithWriters(&stdout, &stderr)

	code := runner.Run([]string{"tools", "--enable-tools", "get_token_info"})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if strings.Contains(stdout.String(), "swap_tokens") {
		t.Fatal("allowlist should filter swap_tokens out")
	}
	if !strings.Contains(stdout.String(), "get_token_info") {
		t.Fatal("allowlisted tool missing")
	}
}
