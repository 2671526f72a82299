package main

import (
	"os"
	"path/filepath"
	"testing"

	"k8s.io/client-go/tools/clientcmd"
)

func TestKubeconfigOrDefaultPrefersExplicit(t *testing.T) {
	if got := kubeconfigOrDefault("/explicit/path"); got != "/explicit/path" {
		t.Fatalf("got %q, want explicit path", got)
	}
}

func TestKubeconfigOrDefaultFallsBackToEnv(t *testing.T) {
	t.Setenv("KUBECONFIG", "/env/path")
	if got := kubeconfigOrDefault(""); got != "/env/path" {
		t.Fatalf("got %q, want $KUBECONFIG", got)
	}
}

func TestKubeconfigOrDefaultFallsBackToHomeFile(t *testing.T) {
	t.Setenv("KUBECONFIG", "")
	if got := kubeconfigOrDefault(""); got != clientcmd.RecommendedHomeFile {
		t.Fatalf("got %q, want %q", got, clientcmd.RecommendedHomeFile)
	}
}

func TestRequireFileMissing(t *testing.T) {
	err := requireFile(filepath.Join(t.TempDir(), "missing.json"), "request file")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestRequireFilePresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := requireFile(path, "request file"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
