package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/pkg/explain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), config.JSONFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func codeOf(err error) string {
	var se *errors.SrasmError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

func TestVersionShort(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version --short = %q, want %q", out, version)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	if _, err := run(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := config.LoadFile(filepath.Join(dir, config.JSONFileName)); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}

	_, err := run(t, "init", dir)
	if code := codeOf(err); code != "S190" {
		t.Errorf("second init code = %q, want S190 (%v)", code, err)
	}
	if _, err := run(t, "init", "--force", "--yaml", dir); err != nil {
		t.Fatalf("init --force --yaml: %v", err)
	}
}

func TestDemo(t *testing.T) {
	reportsDir := filepath.Join(t.TempDir(), "reports")
	cfg := writeConfig(t, `{
  "offload": {"enabled": true, "threshold": 100},
  "reports": {"sink": "disk", "dir": "`+filepath.ToSlash(reportsDir)+`"},
  "log": {"level": "error"}
}`)

	out, err := run(t, "demo", "--config", cfg)
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	for _, want := range []string{"increment demoA", "like post 2 (offloaded)", explain.Unavailable, "Demo complete", "1 offloaded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	m := regexp.MustCompile(`Report: (\S+)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no report id in output:\n%s", out)
	}
	shown, err := run(t, "reports", "show", m[1], "--config", cfg)
	if err != nil {
		t.Fatalf("reports show: %v", err)
	}
	if !strings.Contains(shown, `"slice": "cart"`) {
		t.Errorf("report does not name the slice:\n%s", shown)
	}

	_, err = run(t, "reports", "show", "00000000-0000-0000-0000-000000000000", "--config", cfg)
	if code := codeOf(err); code != "S141" {
		t.Errorf("missing report code = %q, want S141 (%v)", code, err)
	}
	if _, err := run(t, "reports", "cleanup", "--max-age", "1h", "--config", cfg); err != nil {
		t.Errorf("reports cleanup: %v", err)
	}
}

func TestReportsDisabled(t *testing.T) {
	cfg := writeConfig(t, `{}`)
	_, err := run(t, "reports", "cleanup", "--config", cfg)
	if code := codeOf(err); code != "S140" {
		t.Errorf("code = %q, want S140 (%v)", code, err)
	}
}

func TestChats(t *testing.T) {
	historyDir := filepath.Join(t.TempDir(), "history")
	cfg := writeConfig(t, `{"history": {"path": "`+filepath.ToSlash(historyDir)+`", "gcInterval": "0s"}, "log": {"level": "error"}}`)

	out, err := run(t, "chats", "create", "support", "--config", cfg)
	if err != nil {
		t.Fatalf("chats create: %v", err)
	}
	id := strings.TrimSpace(out)
	if !strings.HasPrefix(id, "support_") {
		t.Fatalf("chat id = %q, want support_<millis>", id)
	}

	if _, err := run(t, "chats", "append", id, "hello", "there", "--config", cfg); err != nil {
		t.Fatalf("chats append: %v", err)
	}
	if _, err := run(t, "chats", "append", id, "hi", "--role", "agent", "--config", cfg); err != nil {
		t.Fatalf("chats append agent: %v", err)
	}
	_, err = run(t, "chats", "append", id, "x", "--role", "robot", "--config", cfg)
	if code := codeOf(err); code != "S190" {
		t.Errorf("bad role code = %q, want S190", code)
	}

	out, err = run(t, "chats", "show", id, "--limit", "1", "--config", cfg)
	if err != nil {
		t.Fatalf("chats show: %v", err)
	}
	if !strings.Contains(out, "user: hello there") || !strings.Contains(out, "--offset=1") {
		t.Errorf("unexpected page:\n%s", out)
	}

	out, err = run(t, "chats", "list", "--config", cfg)
	if err != nil {
		t.Fatalf("chats list: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("list missing %s:\n%s", id, out)
	}

	_, err = run(t, "chats", "append", "nope_1", "x", "--config", cfg)
	if code := codeOf(err); code != "S131" {
		t.Errorf("unknown chat code = %q, want S131", code)
	}

	_, err = run(t, "chats", "ask", id, "why?", "--config", cfg)
	if code := codeOf(err); code != "S150" {
		t.Errorf("ask with static provider code = %q, want S150", code)
	}

	if _, err := run(t, "chats", "delete", id, "--config", cfg); err != nil {
		t.Fatalf("chats delete: %v", err)
	}
	out, _ = run(t, "chats", "list", "--config", cfg)
	if strings.Contains(out, id) {
		t.Errorf("deleted chat still listed:\n%s", out)
	}
}

func TestExplainStatic(t *testing.T) {
	cfg := writeConfig(t, `{}`)
	state := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(state, []byte(`{"counter": 3}`), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "explain", "boom", "--state", state, "--config", cfg)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if strings.TrimSpace(out) != explain.Unavailable {
		t.Errorf("explain = %q, want %q", out, explain.Unavailable)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = run(t, "explain", "boom", "--state", bad, "--config", cfg)
	if code := codeOf(err); code != "S190" {
		t.Errorf("bad state code = %q, want S190", code)
	}
}
