// Package artifact manages per-workspace files produced by sessions:
// screenshots, traces, HAR recordings, console exports. Every path that
// reaches the filesystem goes through the containment checks here.
package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidWorkspace = errors.New("invalid workspace_id")
	ErrInvalidPath      = errors.New("invalid artifact path")
	ErrInvalidName      = errors.New("invalid artifact filename")
	ErrNotFound         = errors.New("artifact not found")
)

// Store lays out workspace and artifact directories on disk and mediates
// all reads and writes under them.
type Store struct {
	workspaceRoot string
	artifactRoot  string
	maxBytes      int64
}

// Entry describes one artifact file.
type Entry struct {
	Path  string  `json:"path"`
	Size  int64   `json:"size"`
	MTime float64 `json:"mtime"`
}

// Content is the result of reading an artifact, possibly truncated at the
// store's inline byte limit.
type Content struct {
	Data      []byte
	Size      int64
	Truncated bool
}

// NewStore creates a store. maxBytes caps how much of an artifact Read
// returns inline.
func NewStore(workspaceRoot, artifactRoot string, maxBytes int64) *Store {
	return &Store{
		workspaceRoot: workspaceRoot,
		artifactRoot:  artifactRoot,
		maxBytes:      maxBytes,
	}
}

// ArtifactRoot returns the directory all workspace artifact dirs live under.
func (s *Store) ArtifactRoot() string { return s.artifactRoot }

// MaxBytes returns the inline read cap.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// NormalizeWorkspaceID strips a caller-supplied workspace id down to
// alphanumerics, dashes and underscores. An empty input gets a random id.
func NormalizeWorkspaceID(raw string) (string, error) {
	if raw == "" {
		b := make([]byte, 6)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate workspace id: %w", err)
		}
		return "workspace_" + hex.EncodeToString(b), nil
	}

	var sb strings.Builder
	for _, ch := range raw {
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '-' || ch == '_' {
			sb.WriteRune(ch)
		}
	}
	if sb.Len() == 0 {
		return "", ErrInvalidWorkspace
	}
	return sb.String(), nil
}

// WorkspaceDir creates and returns the scratch directory for a workspace.
func (s *Store) WorkspaceDir(workspaceID string) (string, error) {
	dir := filepath.Join(s.workspaceRoot, workspaceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// ArtifactsDir creates and returns the artifact directory for a workspace.
func (s *Store) ArtifactsDir(workspaceID string) (string, error) {
	dir := filepath.Join(s.artifactRoot, workspaceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	return dir, nil
}

// ResolveName returns a safe absolute path for a new artifact in dir.
// A caller-supplied filename is reduced to its base name; without one a
// timestamped name is generated from defaultPrefix and suffix.
func (s *Store) ResolveName(dir, filename, defaultPrefix, suffix string) (string, error) {
	var name string
	if filename != "" {
		name = filepath.Base(filename)
	} else {
		name = fmt.Sprintf("%s_%d%s", defaultPrefix, time.Now().Unix(), suffix)
	}

	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return "", ErrInvalidName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// Resolve maps a relative artifact path to an absolute path under dir,
// rejecting anything that would escape it.
func (s *Store) Resolve(dir, relPath string) (string, error) {
	if relPath == "" {
		return "", ErrInvalidPath
	}
	candidate := filepath.Clean(filepath.Join(dir, relPath))
	cleanDir := filepath.Clean(dir)
	if candidate != cleanDir && !strings.HasPrefix(candidate, cleanDir+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return candidate, nil
}

// List walks dir and returns every artifact file, sorted by relative
// path. A missing directory is an empty listing, not an error.
func (s *Store) List(dir string) ([]Entry, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("stat artifacts dir: %w", err)
	}

	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:  filepath.ToSlash(rel),
			Size:  info.Size(),
			MTime: float64(info.ModTime().UnixNano()) / float64(time.Second),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Read returns the contents of an artifact under dir, truncated at the
// store's byte limit.
func (s *Store) Read(dir, relPath string) (*Content, error) {
	path, err := s.Resolve(dir, relPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	content := &Content{Data: data, Size: info.Size()}
	if int64(len(content.Data)) > s.maxBytes {
		content.Data = content.Data[:s.maxBytes]
		content.Truncated = true
	}
	return content, nil
}
