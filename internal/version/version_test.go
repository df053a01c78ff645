package version

import (
	"strings"
	"testing"
)

func TestStringUsesLinkerValues(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldB })

	Version, Commit, BuildTime = "1.2.0", "0123456789abcdef", "2024-06-01T12:00:00Z"
	got := String()
	want := "v1.2.0 (commit: 0123456789ab, built: 2024-06-01T12:00:00Z)"
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestStringFallsBack(t *testing.T) {
	oldC, oldB := Commit, BuildTime
	t.Cleanup(func() { Commit, BuildTime = oldC, oldB })

	Commit, BuildTime = "", ""
	if got := String(); !strings.HasPrefix(got, "v"+Version+" (commit: ") {
		t.Fatalf("unexpected version string %q", got)
	}
}
