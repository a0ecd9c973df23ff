package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arborist-labs/statmcp/internal/config"
	"github.com/arborist-labs/statmcp/internal/sanitize"
)

// VFS evaluates the six-step path policy pipeline against a configured
// allow-list of roots. It holds no content; the canonical-path cache only
// memoizes the result of symlink resolution, invalidated on every write.
type VFS struct {
	roots        []string
	readOnly     bool
	maxFileBytes int64
	allowedMIME  map[string]bool
	cache        *lru.Cache[string, string]
}

// New builds a VFS from cfg. Roots must be absolute; cfg.Validate is
// expected to have already enforced this (see internal/config).
func New(cfg config.VFSConfig) (*VFS, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("vfs: creating cache: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedMIME))
	for _, m := range cfg.AllowedMIME {
		allowed[m] = true
	}

	return &VFS{
		roots:        cfg.Roots,
		readOnly:     cfg.ReadOnly,
		maxFileBytes: cfg.MaxFileBytes,
		allowedMIME:  allowed,
		cache:        cache,
	}, nil
}

// Roots returns the configured allow-list roots. The returned slice is a
// copy; callers cannot mutate the VFS's policy through it.
func (v *VFS) Roots() []string {
	roots := make([]string, len(v.roots))
	copy(roots, v.roots)
	return roots
}

// Resolve runs steps 1-4 of the pipeline: expand references, canonicalize,
// confirm the result sits under an allowed root, and reject writes under
// global read-only mode. It does not touch the filesystem beyond what
// filepath.EvalSymlinks requires to resolve symlinks.
func (v *VFS) Resolve(rawPath string, mode Mode) (string, error) {
	expanded, err := expandRefs(rawPath)
	if err != nil {
		return "", Denied(ReasonOutsideRoot, rawPath)
	}

	if cached, ok := v.cache.Get(cacheKey(expanded, mode)); ok {
		return cached, nil
	}

	canonical, err := canonicalize(expanded)
	if err != nil {
		return "", Denied(ReasonSymlinkEscape, rawPath)
	}

	if !v.underAllowedRoot(canonical) {
		return "", Denied(ReasonOutsideRoot, rawPath)
	}

	if v.readOnly && mode == ModeWrite {
		return "", Denied(ReasonReadOnly, rawPath)
	}

	v.cache.Add(cacheKey(expanded, mode), canonical)
	return canonical, nil
}

// OpenRead runs the full read pipeline (steps 1-5): resolve, then enforce
// size and MIME limits, and return the file's bytes.
func (v *VFS) OpenRead(rawPath string) (Entry, []byte, error) {
	canonical, err := v.Resolve(rawPath, ModeRead)
	if err != nil {
		return Entry{}, nil, err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return Entry{}, nil, Denied(ReasonOutsideRoot, rawPath)
	}
	if v.maxFileBytes > 0 && info.Size() > v.maxFileBytes {
		return Entry{}, nil, Denied(ReasonTooLarge, rawPath)
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		return Entry{}, nil, Denied(ReasonOutsideRoot, rawPath)
	}

	mime := sniffMIME(data)
	if len(v.allowedMIME) > 0 && !v.allowedMIME[mime] {
		return Entry{}, nil, Denied(ReasonBadMIME, rawPath)
	}

	return Entry{CanonicalPath: canonical, Size: info.Size(), MIME: mime, Mode: ModeRead}, data, nil
}

// WriteAtomic runs the full write pipeline (steps 1, 2, 3, 4, 6): resolve
// under write intent, then write via temp-file-plus-rename so a reader
// never observes a partial file. Invalidates the canonical-path cache
// entry for this path so a subsequent symlink swap is not served stale.
func (v *VFS) WriteAtomic(rawPath string, data []byte, perm os.FileMode) (Entry, error) {
	canonical, err := v.Resolve(rawPath, ModeWrite)
	if err != nil {
		return Entry{}, err
	}

	dir := filepath.Dir(canonical)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}

	tmp, err := os.CreateTemp(dir, ".vfs-write-*")
	if err != nil {
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}
	if err := os.Rename(tmpName, canonical); err != nil {
		return Entry{}, Denied(ReasonOutsideRoot, rawPath)
	}

	v.invalidate(rawPath)

	return Entry{CanonicalPath: canonical, Size: int64(len(data)), Mode: ModeWrite}, nil
}

func (v *VFS) invalidate(rawPath string) {
	expanded, err := expandRefs(rawPath)
	if err != nil {
		return
	}
	v.cache.Remove(cacheKey(expanded, ModeRead))
	v.cache.Remove(cacheKey(expanded, ModeWrite))
}

func (v *VFS) underAllowedRoot(canonical string) bool {
	for _, root := range v.roots {
		rel, err := filepath.Rel(root, canonical)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..") {
			return true
		}
	}
	return false
}

func cacheKey(path string, mode Mode) string {
	return fmt.Sprintf("%d:%s", mode, path)
}

// expandRefs expands leading ~/ and $VAR / ${VAR} references, failing if
// any reference cannot be resolved (step 1 of the pipeline).
func expandRefs(rawPath string) (string, error) {
	path := rawPath
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	expanded := os.Expand(path, func(key string) string {
		return os.Getenv(key)
	})
	if strings.Contains(expanded, "$") {
		return "", fmt.Errorf("vfs: unresolved reference in path")
	}
	return expanded, nil
}

// canonicalize resolves path to an absolute, symlink-free form (step 2).
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// A not-yet-existing write target: resolve the parent and
			// rejoin, so symlink escapes in an existing ancestor are
			// still caught without requiring the final component exist.
			parent, rerr := filepath.EvalSymlinks(filepath.Dir(abs))
			if rerr != nil {
				return "", rerr
			}
			return filepath.Join(parent, filepath.Base(abs)), nil
		}
		return "", err
	}
	return resolved, nil
}

// sniffMIME uses the file's content, not its extension, to classify it
// (spec.md's "optionally sniff MIME" step). Unrecognized content that is
// valid UTF-8 is classified as text/plain; anything else unrecognized
// falls back to a generic octet stream.
func sniffMIME(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		if utf8.Valid(data) {
			return "text/plain"
		}
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

// baseName re-exports sanitize.SafeBasename so callers constructing scratch
// file names under a VFS root reuse the same traversal-safe logic used by
// the approval/worker packages.
func baseName(path string) (string, error) {
	return sanitize.SafeBasename(path)
}
