package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/mcpconc/config"
)

// Manager enforces filesystem allow-list and path validation guardrails.
// It resolves and stores canonical absolute directory paths and validates
// that requested file paths are within these roots and have supported extensions.
type Manager struct {
	allowedDirs []string
	allowedExts map[string]struct{}
	outputExts  map[string]struct{}
}

// ErrNotAllowed indicates the requested path is outside the allow-list roots.
var ErrNotAllowed = errors.New("security: path not allowed")

// ErrUnsupportedExtension indicates the requested file extension is not supported.
var ErrUnsupportedExtension = errors.New("security: unsupported file extension")

// ErrNotFound indicates the requested file does not exist or is not accessible.
var ErrNotFound = errors.New("security: file not found")

// DefaultInputExtensions are the table formats the reader decodes.
var DefaultInputExtensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// DefaultOutputExtensions are the report formats the writer produces.
var DefaultOutputExtensions = []string{".txt"}

// AllowedDirsEnv names the path-list variable read by NewManagerFromEnv.
var AllowedDirsEnv = config.EnvPrefix + "_ALLOWED_DIRS"

func extSet(list []string) (map[string]struct{}, error) {
	exts := make(map[string]struct{}, len(list))
	for _, e := range list {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}
	return exts, nil
}

// NewManager constructs a security manager given an allow-list of directories
// and a list of allowed input extensions (case-insensitive, with leading dot).
// Directories are canonicalized (absolute + EvalSymlinks) and validated.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultInputExtensions
	}
	exts, err := extSet(allowedExtensions)
	if err != nil {
		return nil, err
	}
	outs, err := extSet(DefaultOutputExtensions)
	if err != nil {
		return nil, err
	}

	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("security: resolve abs for %q: %w", d, err)
		}
		// EvalSymlinks so that symlinked roots cannot be used to escape later.
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("security: eval symlinks for %q: %w", abs, err)
		}
		info, err := os.Stat(real)
		if err != nil {
			return nil, fmt.Errorf("security: stat %q: %w", real, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("security: allow-list entry is not a directory: %q", real)
		}
		canonical = append(canonical, filepath.Clean(real))
	}

	return &Manager{allowedDirs: canonical, allowedExts: exts, outputExts: outs}, nil
}

// NewManagerFromEnv constructs a Manager from MCPCONC_ALLOWED_DIRS, a path list
// separated by os.PathListSeparator. An empty variable yields an empty
// allow-list (deny-by-default).
func NewManagerFromEnv() (*Manager, error) {
	var dirs []string
	if list := os.Getenv(AllowedDirsEnv); list != "" {
		dirs = filepath.SplitList(list)
	}
	return NewManager(dirs, nil)
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// ValidateConfig returns an error when no allow-list entries are configured.
// File operations stay disabled until explicit directories are provided.
func (m *Manager) ValidateConfig() error {
	if len(m.allowedDirs) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// ValidateOpenPath ensures the input path refers to an existing file with an
// allowed extension inside one of the configured allow-list directories.
// It returns the canonical absolute path suitable for opening.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if input == "" {
		return "", ErrNotAllowed
	}
	if _, ok := m.allowedExts[strings.ToLower(filepath.Ext(input))]; !ok {
		return "", ErrUnsupportedExtension
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}

	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: stat: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotAllowed
	}
	if !m.contained(real) {
		return "", ErrNotAllowed
	}
	return real, nil
}

// ValidateOutputPath checks a report destination: a supported extension, an
// existing parent directory inside the allow-list, and no directory or symlink
// escape at the target. The file itself need not exist.
func (m *Manager) ValidateOutputPath(output string) (string, error) {
	if output == "" {
		return "", ErrNotAllowed
	}
	if _, ok := m.outputExts[strings.ToLower(filepath.Ext(output))]; !ok {
		return "", ErrUnsupportedExtension
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}
	target := filepath.Join(dir, filepath.Base(abs))
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			return "", ErrNotAllowed
		}
		if info.Mode()&os.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(target)
			if err != nil || !m.contained(real) {
				return "", ErrNotAllowed
			}
		}
	}
	if !m.contained(target) {
		return "", ErrNotAllowed
	}
	return target, nil
}

// contained reports whether real lies strictly below one of the roots.
func (m *Manager) contained(real string) bool {
	for _, root := range m.allowedDirs {
		rel, err := filepath.Rel(root, real)
		if err != nil || rel == "." || rel == "" {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
