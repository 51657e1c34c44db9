package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Name    string        `yaml:"name"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvOverDefaults(t *testing.T) {
	t.Setenv("ARBOR_TEST_PORT", "9090")
	path := writeFile(t, "port: ${ARBOR_TEST_PORT}\ntimeout: 250ms\n")

	cfg := testConfig{Name: "default", Port: 1}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Name != "default" || cfg.Timeout != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeFile(t, "port: 0\n")

	var cfg testConfig
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "default", Port: 8080}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	var empty testConfig
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &empty); err == nil {
		t.Error("defaults are still validated")
	}
}
