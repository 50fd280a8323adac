package httpd

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Status is a response status line.
type Status struct {
	Code   int
	Reason string
}

// Statuses the responder can produce.
var (
	StatusOK               = Status{Code: 200, Reason: "OK"}
	StatusForbidden        = Status{Code: 403, Reason: "Forbidden"}
	StatusNotFound         = Status{Code: 404, Reason: "Not Found"}
	StatusMethodNotAllowed = Status{Code: 405, Reason: "Method Not Allowed"}
)

// String returns the HTTP/1.1 status line without the trailing CRLF.
func (s Status) String() string {
	return "HTTP/1.1 " + strconv.Itoa(s.Code) + " " + s.Reason
}

// Fixed error bodies.
var (
	NotFoundBody = []byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>404 Not Found</title></head>
<body><h1>Oops!</h1><p>Sorry, I don't know what you're asking for.</p></body>
</html>
`)
	ForbiddenBody = []byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>403 Forbidden</title></head>
<body><h1>Forbidden</h1></body>
</html>
`)
	MethodNotAllowedBody = []byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>405 Method Not Allowed</title></head>
<body><h1>Method Not Allowed</h1></body>
</html>
`)
)

// WriteResponse writes the status line, Content-Type, Content-Length (the
// byte length of body), a blank line and body in a single write.
func WriteResponse(w io.Writer, status Status, contentType string, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(body) + 128)
	fmt.Fprintf(&buf, "%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n", status, contentType, len(body))
	buf.Write(body)

	_, err := w.Write(buf.Bytes())

	return err
}
