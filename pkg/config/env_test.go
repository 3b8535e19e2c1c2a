package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_ENV_A=from_env\nTEST_ENV_B=base\n"), 0o644)
	os.WriteFile(filepath.Join(dir, ".env.local"), []byte("TEST_ENV_B=local\n"), 0o644)

	t.Setenv("TEST_ENV_A", "")
	t.Setenv("TEST_ENV_B", "")
	os.Unsetenv("TEST_ENV_A")
	os.Unsetenv("TEST_ENV_B")
	t.Setenv("TEST_ENV_C", "preset")

	LoadEnvFiles()

	if got := os.Getenv("TEST_ENV_A"); got != "from_env" {
		t.Errorf("TEST_ENV_A = %q", got)
	}
	// .env.local loads first and wins over .env.
	if got := os.Getenv("TEST_ENV_B"); got != "local" {
		t.Errorf("TEST_ENV_B = %q", got)
	}
	if got := os.Getenv("TEST_ENV_C"); got != "preset" {
		t.Errorf("existing variables must not be overridden, got %q", got)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_SET", "value")
	t.Setenv("TEST_EXPAND_EMPTY", "")

	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_EXPAND_SET}", "value"},
		{"prefix-${TEST_EXPAND_SET}-suffix", "prefix-value-suffix"},
		{"${TEST_EXPAND_EMPTY}", ""},
		{"${TEST_EXPAND_SET:-fallback}", "value"},
		{"${TEST_EXPAND_EMPTY:-fallback}", "fallback"},
		{"${TEST_EXPAND_UNSET_XYZ:-deflt}", "deflt"},
	}

	for _, tt := range cases {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
