package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FormatError formats an error for user display: the message followed by
// one indented line per context entry of every QuillError in the chain.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	ctx := GetErrorContext(err)
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		switch k {
		case "type", "code", "recoverable", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(err.Error())
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %v", k, ctx[k])
	}

	return b.String()
}

// GetErrorContext merges the context of every QuillError in err's chain.
// Outer errors win on conflicting keys. The type and code of the outermost
// QuillError are included.
func GetErrorContext(err error) map[string]interface{} {
	var qe *QuillError
	if !errors.As(err, &qe) {
		return map[string]interface{}{
			"message": err.Error(),
			"type":    "unknown",
		}
	}

	context := map[string]interface{}{
		"type":        string(qe.Type),
		"code":        qe.Code,
		"recoverable": qe.Recoverable,
	}
	for cur := error(qe); cur != nil; cur = errors.Unwrap(cur) {
		var inner *QuillError
		if !errors.As(cur, &inner) {
			break
		}
		for k, v := range inner.Context {
			if _, ok := context[k]; !ok {
				context[k] = v
			}
		}
		cur = inner
	}

	return context
}

// ExtractCause returns the innermost error that is not a QuillError, or the
// innermost QuillError when the chain ends in one.
func ExtractCause(err error) error {
	for err != nil {
		var qe *QuillError
		if !errors.As(err, &qe) {
			return err
		}
		if qe.Cause == nil {
			return qe
		}
		err = qe.Cause
	}

	return nil
}
