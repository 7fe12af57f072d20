package localfs

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyLocator      = errors.New("empty locator")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
	ErrNoRoot            = errors.New("media root not configured")
	ErrOutsideRoot       = errors.New("locator outside media root")
)

// Resolver maps media locators to filesystem paths below a single media root.
// Bare paths and file:// URIs must already point inside the root (relative
// paths are taken from it); content:// URIs resolve as <root>/<authority>/<path>.
// Symlinks that lead out of the root are rejected.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	if root == "" {
		return &Resolver{}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Resolver{root: filepath.Clean(root)}
}

func (r *Resolver) Resolve(locator string) (string, error) {
	if locator == "" {
		return "", ErrEmptyLocator
	}
	if r.root == "" {
		return "", ErrNoRoot
	}

	scheme, rest, found := strings.Cut(locator, "://")
	if !found {
		return r.confine(locator)
	}

	switch strings.ToLower(scheme) {
	case "file":
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("parse file uri: %w", err)
		}
		if u.Path == "" {
			return "", ErrEmptyLocator
		}
		return r.confine(u.Path)
	case "content":
		rel, err := url.PathUnescape(rest)
		if err != nil {
			return "", fmt.Errorf("unescape content uri: %w", err)
		}
		rel = filepath.Clean("/" + rel)
		if rel == "/" {
			return "", ErrEmptyLocator
		}
		return r.confine(filepath.Join(r.root, rel))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

func (r *Resolver) confine(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	p = filepath.Clean(p)
	if !within(r.root, p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	// Only existing paths can be followed; a missing file fails later on open.
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p, nil
	}
	realRoot, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		realRoot = r.root
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s links to %s", ErrOutsideRoot, p, resolved)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
