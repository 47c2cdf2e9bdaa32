package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetFullVersion_IncludesAllParts(t *testing.T) {
	full := GetFullVersion()
	for _, part := range []string{GetVersion(), GetBuild(), GetGitCommit()} {
		if !strings.Contains(full, part) {
			t.Errorf("expected %q in full version %q", part, full)
		}
	}
}

func TestLoadVersionFile_OnlyFillsDefaults(t *testing.T) {
	origVersion, origBuild, origCommit := Version, Build, GitCommit
	defer func() { Version, Build, GitCommit = origVersion, origBuild, origCommit }()

	Version, Build, GitCommit = "dev", "unknown", "abc1234"

	path := filepath.Join(t.TempDir(), ".version")
	content := "# generated\nversion: 1.2.3\nbuild: 2026-10-01\ncommit: ffffff\nnonsense\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	loadVersionFile(path)

	if Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", Version)
	}
	if Build != "2026-10-01" {
		t.Errorf("expected build 2026-10-01, got %s", Build)
	}
	if GitCommit != "abc1234" {
		t.Errorf("expected ldflags commit to win, got %s", GitCommit)
	}
}

func TestLoadVersionFile_MissingFileIsIgnored(t *testing.T) {
	loadVersionFile(filepath.Join(t.TempDir(), "missing"))
}
