package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/netmuxd/internal/infrastructure/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func minimalConfig(dir string) string {
	return `
targets:
  - address: "127.0.0.1"
    pair_record_id: "00008030-TEST"

supervisor:
  poll_interval: 50ms

heartbeat:
  port: 1
  connect_timeout: 200ms

database:
  path: "` + filepath.Join(dir, "netmuxd.db") + `"

api:
  enabled: false

logging:
  level: error
  format: text
  output: stderr
`
}

func TestConfigPath(t *testing.T) {
	t.Setenv("NETMUXD_CONFIG", "")
	opts := &rootOptions{}
	if got := opts.configPath(); got != defaultConfigPath {
		t.Errorf("configPath() = %q, want default %q", got, defaultConfigPath)
	}

	t.Setenv("NETMUXD_CONFIG", "/etc/netmuxd/env.yaml")
	if got := opts.configPath(); got != "/etc/netmuxd/env.yaml" {
		t.Errorf("configPath() = %q, want env value", got)
	}

	opts.ConfigPath = "/tmp/flag.yaml"
	if got := opts.configPath(); got != "/tmp/flag.yaml" {
		t.Errorf("configPath() = %q, flag should win", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "netmuxd dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig(dir))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path, "--env-file", filepath.Join(dir, "missing.env")})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("check-config: %v", err)
	}
	for _, want := range []string{"config OK", "127.0.0.1 (00008030-TEST)", "mqtt:      disabled", "api:       disabled"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCheckConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig(dir))
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("NETMUXD_DATABASE_PATH=/var/lib/netmuxd/from-env.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NETMUXD_DATABASE_PATH") })

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path, "--env-file", envPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out.String(), "/var/lib/netmuxd/from-env.db") {
		t.Errorf("env file override not applied:\n%s", out.String())
	}
}

func TestCheckConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
targets:
  - address: ""
    pair_record_id: "x"
`)

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--config", path, "--env-file", filepath.Join(dir, "missing.env")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("check-config should fail for a target without an address")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("NETMUXD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, &rootOptions{EnvFile: "/nonexistent/.env"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_StartsAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig(dir))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, &rootOptions{ConfigPath: path, EnvFile: filepath.Join(dir, "missing.env")})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after its context ended")
	}

	if _, err := os.Stat(filepath.Join(dir, "netmuxd.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestTransportConfig(t *testing.T) {
	got := transportConfig(config.HeartbeatConfig{
		Port:           62078,
		ReceiveTimeout: 15 * time.Second,
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   3 * time.Second,
	})

	if got.Port != 62078 {
		t.Errorf("Port = %d, want 62078", got.Port)
	}
	if got.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", got.ConnectTimeout)
	}
	if got.WriteTimeout != 3*time.Second {
		t.Errorf("WriteTimeout = %v, want 3s (the receive timeout must not leak in)", got.WriteTimeout)
	}
}
