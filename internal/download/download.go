// Package download stores guarded fetch results on the local filesystem.
package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qbandev/safefetch/internal/fetch"
	"github.com/qbandev/safefetch/internal/filename"
)

var ErrInvalidDir = errors.New("invalid target directory")

const maxNameAttempts = 3

// Fetcher is implemented by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, maxRedirects int) (*fetch.Result, error)
}

// Saved describes a written file.
type Saved struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
}

// Downloader writes fetched bodies beneath Root.
type Downloader struct {
	fetcher Fetcher
	root    string
}

func New(fetcher Fetcher, root string) *Downloader {
	return &Downloader{fetcher: fetcher, root: root}
}

// SaveToDir fetches rawURL and writes the body into dir, which is interpreted
// relative to the download root and may not leave it. Existing files are never
// overwritten.
func (d *Downloader) SaveToDir(ctx context.Context, rawURL, dir string, maxRedirects int) (*Saved, error) {
	target, err := d.resolveDir(dir)
	if err != nil {
		return nil, err
	}

	result, err := d.fetcher.Fetch(ctx, rawURL, maxRedirects)
	if err != nil {
		return nil, err
	}

	name := result.Filename
	if name == "" {
		name = filename.Default
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("creating target directory: %w", err)
	}
	// Re-check now that every component exists.
	if _, err := d.resolveDir(dir); err != nil {
		return nil, err
	}

	path, err := writeExclusive(target, name, result.Body)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("url", rawURL).
		Str("path", path).
		Int("bytes", len(result.Body)).
		Msg("Saved download")

	return &Saved{Path: path, Filename: filepath.Base(path), Bytes: len(result.Body)}, nil
}

func (d *Downloader) resolveDir(dir string) (string, error) {
	root, err := filepath.Abs(d.root)
	if err != nil {
		return "", fmt.Errorf("resolving download root: %w", err)
	}
	joined := filepath.Join(root, dir)
	if !within(root, joined) {
		return "", fmt.Errorf("%w: %q escapes the download root", ErrInvalidDir, dir)
	}
	if err := checkNoSymlinkEscape(root, joined); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDir, dir, err)
	}
	return joined, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkNoSymlinkEscape compares the existing parts of root and path after
// following symlinks, so a link inside the root cannot point the write elsewhere.
func checkNoSymlinkEscape(root, path string) error {
	realRoot, err := evalExisting(root)
	if err != nil {
		return err
	}
	realPath, err := evalExisting(path)
	if err != nil {
		return err
	}
	if !within(realRoot, realPath) {
		return errors.New("resolves outside the download root through a symlink")
	}
	return nil
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the components that do not exist yet.
func evalExisting(path string) (string, error) {
	rest := ""
	p := path
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// writeExclusive writes body to a temporary file in dir and links it under
// name, or a suffixed variant when name is taken. A partial write never
// appears under the final name.
func writeExclusive(dir, name string, body []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".safefetch-*")
	if err != nil {
		return "", fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("setting mode on %s: %w", tmpPath, err)
	}

	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		path := filepath.Join(dir, candidate)
		err := os.Link(tmpPath, path)
		if errors.Is(err, os.ErrExist) {
			candidate = withSuffix(name, uuid.NewString()[:8])
			continue
		}
		if err != nil {
			return "", fmt.Errorf("linking %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %q in %s", name, dir)
}

func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "-" + suffix + ext
}
