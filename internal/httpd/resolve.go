package httpd

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/conneroisu/quill/internal/errors"
)

// Resolution errors.
var (
	ErrPathEscape  = errors.NewSecurityError(errors.ErrCodePathTraversal, "request path escapes the output root")
	ErrInvalidPath = errors.NewValidationError(errors.ErrCodeInvalidPath, "invalid request path")
)

// Resolve maps a request target to a slash-separated path relative to the
// output root. "/" and any target ending in "/" map to home inside that
// directory. Query strings and fragments are ignored.
//
// Any ".." segment, before or after percent-decoding, is rejected with
// ErrPathEscape rather than cleaned away, so an escape attempt is visible to
// the caller.
func Resolve(target, home string) (string, error) {
	p := target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", ErrInvalidPath.Wrap(err)
	}
	if !strings.HasPrefix(decoded, "/") {
		return "", ErrInvalidPath.Wrap(fmt.Errorf("target %q is not an absolute path", target))
	}
	if strings.ContainsAny(decoded, "\\\x00") {
		return "", ErrPathEscape.Wrap(fmt.Errorf("target %q contains a forbidden character", target))
	}
	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." {
			return "", ErrPathEscape.Wrap(fmt.Errorf("target %q", target))
		}
	}

	rel := strings.TrimPrefix(path.Clean(decoded), "/")
	if rel == "" {
		return home, nil
	}
	if strings.HasSuffix(decoded, "/") {
		return path.Join(rel, home), nil
	}

	return rel, nil
}
