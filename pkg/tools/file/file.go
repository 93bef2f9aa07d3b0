// Package file manages the pipeline's browsable directories for the web
// surface: battle scripts under the input root and generated assets under
// the output root. Every operation resolves caller-supplied paths against
// those two roots and refuses anything that escapes them.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrEmptyPath marks a request that named no path at all.
	ErrEmptyPath = errors.New("path is required")
	// ErrOutsideRoots marks a path that resolves outside the managed roots.
	ErrOutsideRoots = errors.New("path is outside the managed directories")
	// ErrNotPreviewable marks a file whose type is not served as text.
	ErrNotPreviewable = errors.New("file type not supported for preview")
	// ErrRootDeletion marks an attempt to delete a managed root itself.
	ErrRootDeletion = errors.New("managed roots cannot be deleted")
)

// Previewable file extensions. Everything else is served through the
// static file routes, not the preview endpoint.
var previewExts = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".xml":  true,
	".csv":  true,
	".log":  true,
	".srt":  true,
}

// Entry describes one file or directory in a listing.
type Entry struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"modTime"`
	IsDir   bool   `json:"isDir"`
	Type    string `json:"type"`
}

// Manager resolves and serves paths inside the input and output roots.
type Manager struct {
	roots map[string]string
}

// NewManager creates a manager over the two browsable roots. Relative
// roots are anchored at the working directory.
func NewManager(inputDir, outputDir string) (*Manager, error) {
	absInput, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input root: %w", err)
	}
	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}

	return &Manager{
		roots: map[string]string{
			"input":  absInput,
			"output": absOutput,
		},
	}, nil
}

// Resolve maps a caller path like "output/battles/x" or "./input" onto an
// absolute path inside a managed root. The first path element names the
// root; anything that cleans to a location outside it is rejected.
func (m *Manager) Resolve(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPath
	}

	cleaned := filepath.ToSlash(filepath.Clean(strings.TrimPrefix(raw, "./")))
	parts := strings.SplitN(cleaned, "/", 2)

	root, ok := m.roots[parts[0]]
	if !ok {
		return "", ErrOutsideRoots
	}
	if len(parts) == 1 {
		return root, nil
	}

	resolved := filepath.Join(root, filepath.FromSlash(parts[1]))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", ErrOutsideRoots
	}

	return resolved, nil
}

// List returns the entries of a managed directory, directories first and
// alphabetical within each group.
func (m *Manager) List(dir string) ([]Entry, string, error) {
	resolved, err := m.Resolve(dir)
	if err != nil {
		return nil, "", err
	}

	files, err := os.ReadDir(resolved)
	if err != nil {
		return nil, resolved, err
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    f.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Format(time.RFC3339),
			IsDir:   f.IsDir(),
			Type:    TypeOf(f.Name()),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, resolved, nil
}

// ReadText returns the content of a previewable file.
func (m *Manager) ReadText(path string) ([]byte, error) {
	resolved, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}

	if !previewExts[strings.ToLower(filepath.Ext(resolved))] {
		return nil, ErrNotPreviewable
	}

	return os.ReadFile(resolved)
}

// Delete removes a file or directory tree inside a managed root. The
// roots themselves are not deletable.
func (m *Manager) Delete(path string) error {
	resolved, err := m.Resolve(path)
	if err != nil {
		return err
	}

	for _, root := range m.roots {
		if resolved == root {
			return ErrRootDeletion
		}
	}

	if _, err := os.Stat(resolved); err != nil {
		return err
	}

	return os.RemoveAll(resolved)
}

// SaveUpload stores an uploaded file under a managed directory and
// returns the stored path. The file name is flattened to its base so an
// upload cannot place content outside dir.
func (m *Manager) SaveUpload(dir, name string, r io.Reader) (string, error) {
	resolved, err := m.Resolve(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(resolved, 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	target := filepath.Join(resolved, filepath.Base(name))
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload target: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	return target, nil
}

// TypeOf classifies a file by extension for listings.
func TypeOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp":
		return "image"
	case ".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv":
		return "video"
	case ".mp3", ".wav", ".flac", ".aac", ".ogg":
		return "audio"
	case ".txt", ".md", ".json", ".yaml", ".yml", ".xml", ".csv", ".log", ".srt":
		return "text"
	case ".pdf":
		return "pdf"
	case ".zip", ".rar", ".tar", ".gz", ".7z":
		return "archive"
	default:
		return "unknown"
	}
}
