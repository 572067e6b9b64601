package validation

import (
	"path"
	"path/filepath"
	"strings"

	"folio/internal/errors"
)

// MetaDir is the per-repository metadata directory; it is never part of the
// working tree.
const MetaDir = ".folio"

// ValidateBranchName applies git-style ref name rules
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return errors.InvalidBranchName(name, "name is empty")
	case name == "HEAD":
		return errors.InvalidBranchName(name, "HEAD is reserved")
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "/"):
		return errors.InvalidBranchName(name, "must not start with '-' or '/'")
	case strings.HasSuffix(name, "/"), strings.HasSuffix(name, "."), strings.HasSuffix(name, ".lock"):
		return errors.InvalidBranchName(name, "must not end with '/', '.' or '.lock'")
	case strings.Contains(name, ".."), strings.Contains(name, "//"), strings.Contains(name, "@{"):
		return errors.InvalidBranchName(name, "must not contain '..', '//' or '@{'")
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\", r) {
			return errors.InvalidBranchName(name, "contains a forbidden character")
		}
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return errors.InvalidBranchName(name, "path components must not start with '.'")
		}
	}
	return nil
}

// NormalizePath turns a caller-supplied path into a clean, forward-slash,
// repository-relative path.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", errors.ValidationError("path is empty", nil)
	}
	p = filepath.ToSlash(p)
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", errors.ValidationError("path must be relative to the repository root", p)
	}

	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.ValidationError("path escapes the repository root", p)
	}
	if clean == MetaDir || strings.HasPrefix(clean, MetaDir+"/") {
		return "", errors.ValidationError("path is inside the repository metadata", p)
	}
	return clean, nil
}
