package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialReloaderPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(path, []byte(`{"v":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := WatchCredentialFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if string(r.Current()) != `{"v":1}` {
		t.Fatalf("got %q, want initial contents", r.Current())
	}

	if err := os.WriteFile(path, []byte(`{"v":2}`), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if string(r.Current()) == `{"v":2}` {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("got %q, want rotated contents after write", r.Current())
}
