// Package assets resolves client-supplied image paths against the fixed
// asset root. Resolution is the security boundary: containment is checked on
// the canonical form, after symlinks are resolved, so neither ".." segments
// nor symlinked escapes can reach outside the root.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyPath rejects a missing image_path field.
	ErrEmptyPath = errors.New("image_path must be provided")

	// ErrOutsideRoot rejects a path whose canonical form escapes the root.
	ErrOutsideRoot = errors.New("image_path must reside under the assets directory")
)

// Path is a resolved, root-contained absolute path. Only Resolve builds one.
type Path struct {
	Abs  string
	Root string
}

// Resolve canonicalizes rawPath and proves it lives under assetRoot before
// any read happens. Relative paths may carry a literal leading "assets"
// segment (the public URL prefix clients echo back) which is stripped
// exactly once; this is a fixed rule, not general aliasing. The resolved
// entry must exist.
func Resolve(rawPath, assetRoot string) (Path, error) {
	if rawPath == "" {
		return Path{}, ErrEmptyPath
	}

	root, err := canonicalize(assetRoot)
	if err != nil {
		return Path{}, fmt.Errorf("resolving asset root %s: %w", assetRoot, err)
	}

	var candidate string
	if filepath.IsAbs(rawPath) {
		candidate = filepath.Clean(rawPath)
	} else {
		cleaned := filepath.Clean(rawPath)
		segments := strings.Split(filepath.ToSlash(cleaned), "/")
		if len(segments) > 0 && segments[0] == "assets" {
			cleaned = filepath.Join(segments[1:]...)
		}
		candidate = filepath.Join(root, cleaned)
	}

	resolved, err := canonicalize(candidate)
	if err != nil {
		return Path{}, fmt.Errorf("resolving %s: %w", rawPath, err)
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return Path{}, ErrOutsideRoot
	}

	if _, err := os.Stat(resolved); err != nil {
		if os.IsNotExist(err) {
			return Path{}, fmt.Errorf("image not found: %s: %w", resolved, fs.ErrNotExist)
		}
		return Path{}, err
	}

	return Path{Abs: resolved, Root: root}, nil
}

// canonicalize returns the absolute, symlink-resolved form of p. When the
// final element does not exist yet, its parent is canonicalized instead and
// the base name re-joined, so missing files still canonicalize to a
// checkable location.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if os.IsNotExist(err) {
			// Deep nonexistent parents: the cleaned absolute form is
			// still containment-checkable.
			return abs, nil
		}
		return "", err
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}
