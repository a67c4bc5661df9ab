// Package static resolves request paths to files inside a single root directory.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"asset-proxy/internal/config"
)

// ErrNotFound is returned for paths that do not name a servable file inside the
// root, including paths that would escape it.
var ErrNotFound = errors.New("static: not found")

// Root serves files from one directory. All opens go through os.Root, so
// neither ".." segments nor symlinks can reach outside it.
type Root struct {
	root   *os.Root
	dir    string
	index  string
	logger *slog.Logger
}

// File is an open static file ready to be served.
type File struct {
	*os.File
	Info fs.FileInfo
}

// NewRoot opens the configured static root. A root that does not exist is not
// fatal: the server starts and every static request gets ErrNotFound. Any other
// failure, such as the path naming a regular file, is returned.
func NewRoot(cfg *config.Config, logger *slog.Logger) (*Root, error) {
	logger = logger.With("component", "static")

	r, err := os.OpenRoot(cfg.Static.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("static root does not exist; static requests will return 404", "root", cfg.Static.Root)
	case err != nil:
		return nil, fmt.Errorf("open static root %s: %w", cfg.Static.Root, err)
	default:
		logger.Info("serving static files", "root", cfg.Static.Root)
	}

	return &Root{
		root:   r,
		dir:    cfg.Static.Root,
		index:  cfg.Static.Index,
		logger: logger,
	}, nil
}

// Dir returns the configured root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Close releases the root directory handle.
func (r *Root) Close() error {
	if r.root == nil {
		return nil
	}
	return r.root.Close()
}

// Open resolves urlPath (already URL-decoded) to a regular file. Directories
// resolve to their index file. It returns ErrNotFound when nothing servable
// exists; any other error is an unexpected filesystem failure.
func (r *Root) Open(urlPath string) (*File, error) {
	name, ok := cleanName(urlPath)
	if !ok || r.root == nil {
		return nil, ErrNotFound
	}

	f, info, err := r.open(name)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return &File{File: f, Info: info}, nil
	}
	_ = f.Close()

	f, info, err = r.open(path.Join(name, r.index))
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return &File{File: f, Info: info}, nil
}

func (r *Root) open(name string) (*os.File, fs.FileInfo, error) {
	f, err := r.root.Open(name)
	if err != nil {
		return nil, nil, r.classify(name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, r.classify(name, err)
	}
	return f, info, nil
}

// classify maps "does not exist" and "escapes root" failures to ErrNotFound.
func (r *Root) classify(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || isEscape(err) {
		r.logger.Debug("static miss", "name", name, "err", err)
		return ErrNotFound
	}
	return fmt.Errorf("static: open %s: %w", name, err)
}

// isEscape reports whether err is os.Root refusing a path outside the root.
// os.Root reports this as a *PathError whose message is "path escapes from parent".
func isEscape(err error) bool {
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		return false
	}
	return strings.Contains(pe.Err.Error(), "escapes")
}

// cleanName turns a URL path into a root-relative slash path. Lexical cleaning
// against "/" discards any leading ".." so it can never climb above the root.
// Dotfiles are not served.
func cleanName(urlPath string) (string, bool) {
	if strings.ContainsRune(urlPath, 0) || strings.Contains(urlPath, "\\") {
		return "", false
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		name = "."
	}
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return "", false
		}
	}
	return name, true
}
