package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	doc := fmt.Sprintf(`
compression: s2
local:
  backend: badger
  dir: %s
structured:
  backend: sqlite
  path: %s
log:
  level: error
`, filepath.Join(dir, "badger"), filepath.Join(dir, "entries.db"))
	p := filepath.Join(dir, "tiercache.yaml")
	if err := os.WriteFile(p, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// run executes one CLI invocation in a fresh App, as a separate process would.
func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp().WithOutput(&out, &errOut)
	full := append([]string{"--config", cfg, "--env-file", ""}, args...)
	err := app.ExecuteWithArgs(context.Background(), full)
	return out.String(), err
}

func TestSetGetAcrossInvocations(t *testing.T) {
	cfg := writeConfig(t)

	if out, err := run(t, cfg, "set", "user:1", "Ann"); err != nil || strings.TrimSpace(out) != "OK" {
		t.Fatalf("set: %q %v", out, err)
	}
	if out, err := run(t, cfg, "set", "doc:1", "body", "--level", "structured", "--meta", "owner=ops"); err != nil {
		t.Fatalf("set structured: %q %v", out, err)
	}

	out, err := run(t, cfg, "get", "user:1")
	if err != nil || strings.TrimSpace(out) != "Ann" {
		t.Fatalf("get after restart: %q %v", out, err)
	}
	// the read must not have moved it out of the durable tier
	out, err = run(t, cfg, "get", "--json", "user:1", "doc:1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("json: %v (%s)", err, out)
	}
	if got["user:1"] != "Ann" || got["doc:1"] != "body" {
		t.Fatalf("get --json: %v", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := run(t, cfg, "get", "nope"); !errors.Is(err, errNotFound) {
		t.Fatalf("want errNotFound, got %v", err)
	}
}

func TestDeleteAndTouch(t *testing.T) {
	cfg := writeConfig(t)
	run(t, cfg, "set", "k", "v")

	if out, err := run(t, cfg, "touch", "k", "--ttl", "1h"); err != nil || strings.TrimSpace(out) != "OK" {
		t.Fatalf("touch: %q %v", out, err)
	}
	if out, _ := run(t, cfg, "del", "k", "other"); strings.TrimSpace(out) != "deleted 1" {
		t.Fatalf("del: %q", out)
	}
	if _, err := run(t, cfg, "touch", "k"); !errors.Is(err, errNotFound) {
		t.Fatalf("touch after delete: %v", err)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := writeConfig(t)
	run(t, cfg, "set", "a", "1")
	run(t, cfg, "set", "b", "2", "--level", "structured")

	out, err := run(t, cfg, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var st struct {
		Tiers []struct {
			Level   string
			Entries int
		}
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("stats json: %v (%s)", err, out)
	}
	entries := map[string]int{}
	for _, tr := range st.Tiers {
		entries[tr.Level] = tr.Entries
	}
	if entries["local"] != 1 || entries["structured"] != 1 {
		t.Fatalf("rebuilt residency: %v", entries)
	}

	out, err = run(t, cfg, "health")
	if err != nil || !strings.Contains(out, `"healthy"`) {
		t.Fatalf("health: %s %v", out, err)
	}
}

func TestClearLevel(t *testing.T) {
	cfg := writeConfig(t)
	run(t, cfg, "set", "a", "1")
	run(t, cfg, "set", "b", "2", "--level", "structured")

	if _, err := run(t, cfg, "clear", "local"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := run(t, cfg, "get", "a"); !errors.Is(err, errNotFound) {
		t.Fatalf("a survived clear: %v", err)
	}
	if out, err := run(t, cfg, "get", "b"); err != nil || strings.TrimSpace(out) != "2" {
		t.Fatalf("b: %q %v", out, err)
	}
	if _, err := run(t, cfg, "clear", "bogus"); err == nil {
		t.Fatalf("unknown level accepted")
	}
}

func TestSetFromStdin(t *testing.T) {
	cfg := writeConfig(t)
	var out bytes.Buffer
	app := NewApp().WithOutput(&out, &bytes.Buffer{})
	app.root.SetIn(strings.NewReader("from stdin"))
	if err := app.ExecuteWithArgs(context.Background(), []string{"-c", cfg, "--env-file", "", "set", "k", "-"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := run(t, cfg, "get", "k"); strings.TrimSpace(got) != "from stdin" {
		t.Fatalf("get: %q", got)
	}
}
