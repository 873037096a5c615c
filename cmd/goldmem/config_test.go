package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	missing, err := loadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil || missing.OutDir != "" || missing.Seed != nil {
		t.Fatalf("missing file: got %+v, %v", missing, err)
	}

	path := filepath.Join(dir, "config.yaml")
	body := "out_dir: /tmp/golden\nseed: 0\nlog_level: debug\nserver_address: 0.0.0.0:9090\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	conf, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if conf.OutDir != "/tmp/golden" || conf.Seed == nil || *conf.Seed != 0 || conf.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", conf)
	}

	if err := os.WriteFile(path, []byte("seed: [1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

// runWithOutputFlags parses args against the output flags and applies conf.
func runWithOutputFlags(t *testing.T, conf Config, args ...string) {
	t.Helper()
	outDir, seed = "", 0
	cmd := &cli.Command{
		Name:  "test",
		Flags: append(outputFlags(), seedFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOutputConfig(cmd, conf)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestApplyOutputConfig(t *testing.T) {
	seven := int64(7)
	conf := Config{OutDir: "from-config", Seed: &seven}

	runWithOutputFlags(t, conf)
	if outDir != "from-config" || seed != 7 {
		t.Fatalf("config not applied: out=%q seed=%d", outDir, seed)
	}

	runWithOutputFlags(t, conf, "--out", "from-flag", "--seed", "0")
	if outDir != "from-flag" || seed != 0 {
		t.Fatalf("flags did not win: out=%q seed=%d", outDir, seed)
	}
}
