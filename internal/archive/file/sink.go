// Package file provides a directory-backed archive sink.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/MasterChonk/SkillToken-V2/internal/archive"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

const (
	KeyPath            = "path"
	KeyDirPermissions  = "dir_permissions"
	KeyFilePermissions = "file_permissions"
)

func init() {
	archive.Register("file", NewFactory, Defaults)
}

// Defaults returns the default configuration for the file sink.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:            "archive",
		KeyDirPermissions:  "0700",
		KeyFilePermissions: "0600",
	}
}

// NewFactory creates a file sink. A relative path is resolved under the
// data directory.
func NewFactory(_ context.Context, config map[string]string) (archive.Sink, error) {
	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("file", KeyPath, "cannot be empty")
	}
	path = storage.ResolvePath(path, config[storage.KeyDataDir])

	dirPerms, err := parseFileMode(config[KeyDirPermissions], 0o700)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("file", KeyDirPermissions, config[KeyDirPermissions], "must be an octal permission string (e.g. 0700)")
	}
	filePerms, err := parseFileMode(config[KeyFilePermissions], 0o600)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("file", KeyFilePermissions, config[KeyFilePermissions], "must be an octal permission string (e.g. 0600)")
	}

	if err := os.MkdirAll(path, dirPerms); err != nil {
		return nil, storage.NewConfigErrorWithCause("file", KeyPath, "failed to create directory", err)
	}

	slog.Info("file archive sink initialized", "path", path)
	return &Sink{root: path, filePerms: filePerms}, nil
}

func parseFileMode(s string, defaultMode os.FileMode) (os.FileMode, error) {
	if s == "" {
		return defaultMode, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(v), nil
}

// Sink stores each object as one file under a root directory.
type Sink struct {
	root      string
	filePerms os.FileMode
	closed    atomic.Bool
}

// Root returns the directory objects are written to.
func (s *Sink) Root() string { return s.root }

func (s *Sink) objectPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

// Put writes data through a temp file and rename so readers never see a
// partial snapshot.
func (s *Sink) Put(_ context.Context, name string, data []byte) error {
	if s.closed.Load() {
		return archive.ErrClosed
	}
	path, err := s.objectPath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file put: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file put: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file put: %w", closeErr)
	}
	if err := os.Chmod(tmpName, s.filePerms); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file put: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file put: %w", err)
	}
	return nil
}

func (s *Sink) Get(_ context.Context, name string) ([]byte, error) {
	if s.closed.Load() {
		return nil, archive.ErrClosed
	}
	path, err := s.objectPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, archive.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file get: %w", err)
	}
	return data, nil
}

func (s *Sink) Close() error {
	s.closed.Store(true)
	return nil
}
