// Package archive tars+gzips a task's workspace directory and uploads it
// to an S3-compatible bucket on task completion (spec.md §4.9, §6
// "Persisted artifacts"). Archiving itself has no teacher analogue and
// is built on the standard library (justification: neither the teacher
// nor any other pack repo wires a third-party tar/zip library — the
// pack's own docker/helm/git workflows shell out to tools that produce
// archives themselves, they never build one in Go). The upload step
// reuses the AWS S3 client family the ECR registry provider already
// pins (internal/registry/ecr.go), generalized to a plain object-storage
// client per the design note in SPEC_FULL.md §4.10.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// Create tars+gzips every file under root into destTarGz. Symlinks are
// followed: a symlinked file is stored with its target's contents, and a
// symlinked directory is stored as a directory entry whose contents are
// not walked. The archive's internal paths are relative to root.
func Create(root, destTarGz string) error {
	out, err := os.Create(destTarGz)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "creating archive file", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if info, err = os.Stat(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		tw.Close()
		gz.Close()
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "archiving workspace "+root, walkErr)
	}

	if err := tw.Close(); err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "closing tar writer", err)
	}
	if err := gz.Close(); err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "closing gzip writer", err)
	}
	return nil
}

// Uploader pushes one local archive file to a remote bucket key.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) error
}

// Discard deletes the local archive file, used after a successful
// upload (spec.md §4.9: "then deletes the local archive").
func Discard(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "deleting local archive "+path, err)
	}
	return nil
}
