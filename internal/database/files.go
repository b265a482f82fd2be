package database

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// sqliteSignature is the 16-byte header every SQLite 3 file starts with.
var sqliteSignature = []byte("SQLite format 3\x00")

// SidecarSuffixes lists the files SQLite may keep next to a database.
var SidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// HasSQLiteSignature reports whether the file begins with the SQLite header.
// Legacy encrypted databases fail this check.
func HasSQLiteSignature(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header := make([]byte, len(sqliteSignature))
	if _, err := io.ReadFull(file, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(header, sqliteSignature), nil
}

// FileExists reports whether a regular file exists at path.
func FileExists(path string) (bool, error) {
	return fileExists(path)
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// RemoveWithSidecars deletes the database file and any journal sidecars.
// Missing files are not an error.
func RemoveWithSidecars(path string) error {
	var errs []error
	for _, candidate := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Remove(candidate); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sidecarPaths(path string) []string {
	paths := make([]string, 0, len(SidecarSuffixes))
	for _, suffix := range SidecarSuffixes {
		paths = append(paths, path+suffix)
	}
	return paths
}

// MoveFile renames src to dst, copying across filesystems when a rename is not possible.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}

// MoveWithSidecars moves a database file and the journals that hold its
// committed pages. A -shm index is only meaningful to the connection that
// built it and is dropped. On failure nothing is left at dst.
func MoveWithSidecars(src, dst string) error {
	if err := RemoveWithSidecars(dst); err != nil {
		return err
	}
	if err := MoveFile(src, dst); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-journal"} {
		present, err := fileExists(src + suffix)
		if err == nil && present {
			err = MoveFile(src+suffix, dst+suffix)
		}
		if err != nil {
			return errors.Join(fmt.Errorf("move %s sidecar: %w", suffix, err), RemoveWithSidecars(dst))
		}
	}
	if err := os.Remove(src + "-shm"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
