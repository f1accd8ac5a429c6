package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnnounceHost(t *testing.T) {
	if got := announceHost("lamp.local"); got != "lamp.local" {
		t.Fatalf("got %q", got)
	}
	got := announceHost("")
	if !strings.HasSuffix(got, ".local") || strings.Count(got, ".") != 1 {
		t.Fatalf("unexpected default host %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(out.String(), "headlink "+Version) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestLoadConfigVerbose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headlink.toml")
	if err := os.WriteFile(path, []byte("[run]\nattempts = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgFile, verbose = path, true
	defer func() { cfgFile, verbose = "", false }()

	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Run.Attempts != 4 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "serve": false, "chase": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
