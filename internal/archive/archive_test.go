package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "applications", "svc-1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "applications", "svc-1", "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "workspace.tar.gz")
	if err := Create(root, dest); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("not gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	var found bool
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		if hdr.Name == "applications/svc-1/Dockerfile" {
			found = true
			body, _ := io.ReadAll(tr)
			if string(body) != "FROM scratch\n" {
				t.Fatalf("unexpected body: %q", body)
			}
		}
	}
	if !found {
		t.Fatal("expected applications/svc-1/Dockerfile in archive")
	}
}

func TestDiscardIsIdempotentOnMissingFile(t *testing.T) {
	if err := Discard(filepath.Join(t.TempDir(), "does-not-exist.tar.gz")); err != nil {
		t.Fatalf("expected no error deleting missing file, got %v", err)
	}
}
