package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	return path
}

func TestLoadOrder(t *testing.T) {
	t.Setenv("SCREENER_TEST_KEY", " from-env ")

	tests := []struct {
		name   string
		src    Source
		expect string
	}{
		{"file wins", Source{File: writeSecret(t, "from-file\n"), Env: "SCREENER_TEST_KEY", Value: "inline"}, "from-file"},
		{"env before inline", Source{Env: "SCREENER_TEST_KEY", Value: "inline"}, "from-env"},
		{"inline when env unset", Source{Env: "SCREENER_TEST_MISSING", Value: " inline "}, "inline"},
		{"inline only", Source{Value: "inline"}, "inline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		message string
	}{
		{"nothing configured", Source{Name: "gemini api key"}, "gemini api key is not configured"},
		{"env hint", Source{Name: "gemini api key", Env: "SCREENER_TEST_MISSING"}, "set SCREENER_TEST_MISSING"},
		{"empty file", Source{File: writeSecret(t, "  \n")}, "secret file"},
		{"missing file", Source{File: filepath.Join(t.TempDir(), "nope")}, "reading secret from file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Fatalf("expected error to contain %q, got %q", tt.message, err)
			}
		})
	}
}
