// Package httpd implements the one-shot static-file responder run for every
// accepted connection: read a request head, map the target to a file under
// the output root, write a status line, two headers and the body.
package httpd

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/conneroisu/quill/internal/errors"
)

const (
	maxLineLength = 8 << 10
	maxHeaders    = 100
)

// Request errors.
var (
	ErrMalformedRequest  = errors.NewProtocolError(errors.ErrCodeMalformedRequest, "malformed request")
	ErrUnsupportedMethod = errors.NewProtocolError(errors.ErrCodeUnsupportedMethod, "unsupported method")
)

// Request is the parsed request head. Only the start line drives a response;
// headers are recorded but not interpreted.
type Request struct {
	Method string
	Target string
	Proto  string
	Header map[string]string
}

type parseState int

const (
	stateStartLine parseState = iota
	stateHeaders
	stateDone
)

// ReadRequest reads a request head from r: one start line of exactly three
// space-separated tokens, then header lines until a blank line. EOF right
// after the start line or inside the headers ends the head early.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	req := &Request{Header: make(map[string]string)}
	state := stateStartLine

	for state != stateDone {
		line, err := readLine(r)
		if err != nil {
			if err == io.EOF && state == stateHeaders {
				state = stateDone
				continue
			}
			return nil, ErrMalformedRequest.Wrap(err)
		}

		switch state {
		case stateStartLine:
			if err := req.parseStartLine(line); err != nil {
				return nil, err
			}
			state = stateHeaders
		case stateHeaders:
			if line == "" {
				state = stateDone
				continue
			}
			if len(req.Header) >= maxHeaders {
				return nil, ErrMalformedRequest.Wrap(fmt.Errorf("more than %d headers", maxHeaders))
			}
			if err := req.parseHeader(line); err != nil {
				return nil, err
			}
		}
	}

	return req, nil
}

func (req *Request) parseStartLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return ErrMalformedRequest.Wrap(fmt.Errorf("start line has %d tokens, want 3: %q", len(fields), line))
	}
	req.Method, req.Target, req.Proto = fields[0], fields[1], fields[2]

	return nil
}

func (req *Request) parseHeader(line string) error {
	name, value, ok := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return ErrMalformedRequest.Wrap(fmt.Errorf("bad header line %q", line))
	}
	req.Header[textproto.CanonicalMIMEHeaderKey(name)] = strings.TrimSpace(value)

	return nil
}

// readLine returns one line without its CRLF or LF terminator. A final line
// with no terminator is returned as-is; io.EOF is only reported when nothing
// was read.
func readLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
		b.Write(chunk)
		if b.Len() > maxLineLength {
			return "", fmt.Errorf("line longer than %d bytes", maxLineLength)
		}
		if !isPrefix {
			return b.String(), nil
		}
	}
}
