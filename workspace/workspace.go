// Package workspace manages the per-request working directories that hold
// generated scripts, render logs and media.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aafimalek/animation-genai/logging"
)

// Namer maps a request identifier to a directory name. It must be pure.
type Namer func(requestID string) string

// PrefixNamer returns a Namer producing prefix+requestID.
func PrefixNamer(prefix string) Namer {
	return func(id string) string { return prefix + id }
}

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidID reports whether id is safe to use as a directory name component.
func ValidID(id string) bool {
	return validID.MatchString(id) && id != "." && id != ".."
}

// Manager creates and prunes workspaces under Root.
type Manager struct {
	Root   string
	Prefix string
	Namer  Namer
	Now    func() time.Time
	Logger *zap.Logger
}

// NewManager returns a Manager using PrefixNamer(prefix) and the wall clock.
func NewManager(root, prefix string, logger *zap.Logger) *Manager {
	logger = logging.OrNop(logger)
	return &Manager{
		Root:   root,
		Prefix: prefix,
		Namer:  PrefixNamer(prefix),
		Now:    time.Now,
		Logger: logger,
	}
}

// Workspace is the directory owned by one generation request.
type Workspace struct {
	RequestID string
	Dir       string
}

// ErrNoPrefix is returned by Prune when the manager has no name prefix, since
// every directory under Root would then qualify.
var ErrNoPrefix = errors.New("workspace prefix is empty; refusing to prune")

// ErrExists is returned when a workspace for the request already exists.
var ErrExists = errors.New("workspace already exists")

// Path returns the directory a request would use, without creating it.
func (m *Manager) Path(requestID string) string {
	return filepath.Join(m.Root, m.Namer(requestID))
}

// Create makes a fresh workspace for requestID. It fails with ErrExists rather
// than reusing a directory.
func (m *Manager) Create(requestID string) (*Workspace, error) {
	if !ValidID(requestID) {
		return nil, fmt.Errorf("invalid request id %q", requestID)
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := m.Path(requestID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, dir)
		}
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	m.Logger.Debug("workspace created", zap.String("request_id", requestID), zap.String("dir", dir))
	return &Workspace{RequestID: requestID, Dir: dir}, nil
}

// AttemptDir creates and returns the directory for the 1-based attempt index.
func (w *Workspace) AttemptDir(index int) (string, error) {
	dir := filepath.Join(w.Dir, fmt.Sprintf("attempt-%02d", index))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create attempt directory: %w", err)
	}
	return dir, nil
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

// Prune removes workspaces under Root whose modification time is older than
// maxAge. Only directories named with Prefix are considered, so a custom Namer
// must keep the prefix for its workspaces to be pruned. It returns the removed
// directories.
func (m *Manager) Prune(maxAge time.Duration) ([]string, error) {
	if m.Prefix == "" {
		return nil, ErrNoPrefix
	}
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := m.Now().Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), m.Prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(m.Root, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			m.Logger.Warn("failed to prune workspace", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed = append(removed, dir)
	}
	if len(removed) > 0 {
		m.Logger.Info("pruned stale workspaces", zap.Int("count", len(removed)))
	}
	return removed, nil
}
