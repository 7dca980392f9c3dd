package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace.Root != dir {
		t.Errorf("Workspace.Root: want %q, got %q", dir, cfg.Workspace.Root)
	}
	if cfg.Loop.MaxIterations != 99 {
		t.Errorf("Loop.MaxIterations default: want 99, got %d", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.MaxExploration != 20 {
		t.Errorf("Loop.MaxExploration default: want 20, got %d", cfg.Loop.MaxExploration)
	}
	if cfg.Transport.StreamIdleTimeout != 30*time.Minute {
		t.Errorf("Transport.StreamIdleTimeout default: want 30m, got %v", cfg.Transport.StreamIdleTimeout)
	}
	if cfg.Txn.MaxBytes != 3*1024*1024*1024 {
		t.Errorf("Txn.MaxBytes default: want 3GiB, got %d", cfg.Txn.MaxBytes)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default: want info, got %q", cfg.LogLevel)
	}
}

func TestLoad_ReadsWorkspaceConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"server": {"port": 9999}, "loop": {"max_exploration": 5}}`
	if err := os.WriteFile(filepath.Join(dir, configFileName+".json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port: want 9999, got %d", cfg.Server.Port)
	}
	if cfg.Loop.MaxExploration != 5 {
		t.Errorf("Loop.MaxExploration: want 5, got %d", cfg.Loop.MaxExploration)
	}
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"server": {"port": 9999}}`
	if err := os.WriteFile(filepath.Join(dir, configFileName+".json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("MAEUM_IDE_SERVER_PORT", "7000")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port: want env override 7000, got %d", cfg.Server.Port)
	}
}

func TestLoad_PermissionDefaultsToProjectDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Permission.ProjectDir != dir {
		t.Errorf("Permission.ProjectDir: want %q, got %q", dir, cfg.Permission.ProjectDir)
	}
}

func TestValidate_RejectsMissingBaseURL(t *testing.T) {
	cfg := &Config{
		Workspace: WorkspaceConfig{Root: "/tmp/x"},
		Server:    ServerConfig{Port: 4096},
		Loop:      LoopConfig{MaxIterations: 1, MaxExploration: 1},
		Index:     IndexConfig{WorkerPoolMax: 1},
		Txn:       TxnConfig{MaxTransactions: 1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty base_url")
	}
}

func TestConfigFilePath(t *testing.T) {
	got := ConfigFilePath("/workspace")
	want := filepath.Join("/workspace", ".maeum-ide.json")
	if got != want {
		t.Errorf("ConfigFilePath: want %q, got %q", want, got)
	}
}
