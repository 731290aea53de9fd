package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/nao1215/fisgon/internal/urlutil"
)

// ErrInvalidPath is returned for stored paths that escape the root.
var ErrInvalidPath = errors.New("invalid storage path")

// Blob describes a stored file.
type Blob struct {
	// Path is the storage-relative path, as recorded on the result.
	Path string
	// Name is the sanitized file name without the hash prefix.
	Name string
	// Hash is the hex SHA-256 of the content.
	Hash string
	// Size is the content length in bytes.
	Size int64
}

// Store writes and removes session files below a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root on fs.
func New(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: root}
}

// NewOS returns a Store on the local file system.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// SessionDir returns the directory holding the session's files.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// CreateSessionDir creates the session directory.
func (s *Store) CreateSessionDir(sessionID string) error {
	if err := s.fs.MkdirAll(s.SessionDir(sessionID), 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

// Save stores data for a session under a name derived from fileName and
// the content hash. Saving identical content twice is harmless.
func (s *Store) Save(sessionID, fileName string, data []byte) (*Blob, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	name := urlutil.SanitizeFilename(fileName)
	rel := path.Join(sessionID, hash+"_"+name)

	if err := s.CreateSessionDir(sessionID); err != nil {
		return nil, err
	}
	if err := afero.WriteFile(s.fs, s.abs(rel), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return &Blob{
		Path: rel,
		Name: name,
		Hash: hash,
		Size: int64(len(data)),
	}, nil
}

// ReadFile returns the content of a stored file.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return data, nil
}

// FileTimes returns the modification time of a stored file. File systems
// without a creation time report the same value twice.
func (s *Store) FileTimes(rel string) (created, modified time.Time, err error) {
	p, err := s.resolve(rel)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	return info.ModTime(), info.ModTime(), nil
}

// LocalPath returns the full path of a stored file.
func (s *Store) LocalPath(rel string) string {
	return s.abs(rel)
}

// Remove deletes one stored file. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	p, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// RemoveSession deletes the session directory and everything in it.
func (s *Store) RemoveSession(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidPath, sessionID)
	}
	if err := s.fs.RemoveAll(s.SessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// resolve maps a stored relative path to a path below the root.
func (s *Store) resolve(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if rel == "" || clean == "/" || clean[1:] != strings.TrimPrefix(filepath.ToSlash(rel), "./") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return s.abs(clean[1:]), nil
}
