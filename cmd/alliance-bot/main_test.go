package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/config"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	for _, key := range []string{"ALLIANCE_TOKEN", "ALLIANCE_GUILD_ID", "ALLIANCE_NATS_URL", "ALLIANCE_AUTO_PURGE_TIER"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("ALLIANCE_DB_PATH", filepath.Join(dir, "alliance.db"))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestMigrateCreatesSchema(t *testing.T) {
	out, err := runRoot(t, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "is up to date") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestAwardResetRunsWithoutDiscord(t *testing.T) {
	out, err := runRoot(t, "award-cycle", "reset", "beta")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !strings.Contains(out, "deleted 0 activity rows older than 90 days") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTasksRequiringDiscord(t *testing.T) {
	for _, args := range [][]string{
		{"check-tenure"},
		{"sync-members"},
		{"award-cycle", "run", "gamma"},
	} {
		_, err := runRoot(t, args...)
		if !errors.Is(err, config.ErrMissingToken) {
			t.Fatalf("%v: got=%v want=%v", args, err, config.ErrMissingToken)
		}
	}
}

func TestAwardCycleRejectsUnknownTier(t *testing.T) {
	if _, err := runRoot(t, "award-cycle", "run", "delta"); err == nil {
		t.Fatalf("expected an error for an unknown tier")
	}
	if _, err := runRoot(t, "award-cycle", "reset"); err == nil {
		t.Fatalf("expected an error without a tier")
	}
}

func TestRuntimeFansOutToAddedPublishers(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "alliance.db")

	rt, err := openRuntime(&cfg, runtimeOptions{})
	if err != nil {
		t.Fatalf("openRuntime failed: %v", err)
	}
	defer rt.Close()

	if rt.env.Platform != nil || rt.discord != nil {
		t.Fatalf("platform should be unset without a token")
	}
	rec := &broadcast.Recorder{}
	rt.addPublisher(rec)
	if err := rt.env.Publisher().Publish(t.Context(), "alliance.test", "x"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := len(rec.Topic("alliance.test")); got != 1 {
		t.Fatalf("got=%d want=1", got)
	}
}
