package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("LOOPGRID_TEST_TOKEN", "s3cret")
	path := writeFile(t, "port: ${LOOPGRID_TEST_PORT:-9090}\ntoken: ${LOOPGRID_TEST_TOKEN}\n")

	cfg := testConfig{Name: "default"}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 9090 || cfg.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "name: x\n")
	var cfg testConfig
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file")
	}
	if err := Load(writeFile(t, "port: [1\n"), &cfg); err == nil {
		t.Error("expected error for bad yaml")
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg := testConfig{Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d", cfg.Port)
	}

	var empty testConfig
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &empty); err == nil {
		t.Error("defaults should still be validated")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("LOOPGRID_TEST_SET", "a")
	t.Setenv("LOOPGRID_TEST_EMPTY", "")
	tests := []struct{ in, want string }{
		{"${LOOPGRID_TEST_SET}", "a"},
		{"$LOOPGRID_TEST_SET/b", "a/b"},
		{"${LOOPGRID_TEST_EMPTY:-fb}", "fb"},
		{"${LOOPGRID_TEST_UNSET_X:-./data}", "./data"},
		{"${LOOPGRID_TEST_UNSET_X}", ""},
	}
	for _, tt := range tests {
		if got := Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
