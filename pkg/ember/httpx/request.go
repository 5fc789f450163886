// Package httpx implements the incremental HTTP/1.1 request parser and the
// static-resource response builder used by a Connection. The parser is an
// explicit state machine driven line-by-line from a buffer.Buffer so that
// partial input never triggers re-parsing of bytes already consumed.
package httpx

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"

	"github.com/yourusername/ember/pkg/ember/buffer"
)

// State is a parser state in the REQUEST_LINE -> HEADERS -> BODY -> FINISH
// state machine.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateFinish
)

// ErrMalformedRequestLine is returned when the request line doesn't match
// "METHOD SP TARGET SP HTTP/VERSION".
var ErrMalformedRequestLine = errors.New("httpx: malformed request line")

var requestLineRE = regexp.MustCompile(`^(\S+) (\S+) HTTP/(\S+)$`)
var headerLineRE = regexp.MustCompile(`^([^:]+): ?(.*)$`)

// defaultResourceNames is the whitelist of extensionless resource names that
// get ".html" appended, per spec. "/" is handled separately as /index.html.
var defaultResourceNames = map[string]bool{
	"/login": true, "/register": true, "/index": true, "/error": true,
	"/JSON": true, "/linux": true, "/Xshell": true, "/Docker2022": true,
	"/lucky": true,
}

// authTag maps a canonicalized path to the registration(0)/login(1) tag
// that triggers the Verifier side effect.
var authTag = map[string]int{
	"/register.html": 0,
	"/login.html":     1,
}

// Verifier is the external collaborator behind verify_user(name, pwd,
// is_login): an opaque synchronous predicate, typically backed by
// sqlpool/auth, that may block briefly acquiring a SQL connection. Parse
// must therefore only ever be called from a worker goroutine, never from
// the reactor's event-loop goroutine.
type Verifier interface {
	Verify(name, pwd string, isLogin bool) bool
}

// Request accumulates the fields of an HTTP/1.1 request as Parse consumes
// bytes. It is reinitialized (not reallocated) between requests on a
// keep-alive connection via Reset.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers map[string]string
	Body    string
	Form    map[string]string

	state State
}

// NewRequest returns a Request ready to parse, in StateRequestLine.
func NewRequest() *Request {
	r := &Request{}
	r.Reset()
	return r
}

// Reset clears all fields and returns the Request to StateRequestLine, for
// reuse across keep-alive requests on the same connection.
func (r *Request) Reset() {
	r.Method, r.Path, r.Version, r.Body = "", "", "", ""
	r.Headers = make(map[string]string)
	r.Form = make(map[string]string)
	r.state = StateRequestLine
}

// State returns the current parser state.
func (r *Request) State() State { return r.state }

// Done reports whether the parser has reached StateFinish.
func (r *Request) Done() bool { return r.state == StateFinish }

// IsKeepAlive reports whether this request requested a persistent
// connection: HTTP/1.1 with an explicit "Connection: keep-alive" header.
func (r *Request) IsKeepAlive() bool {
	return r.Headers["Connection"] == "keep-alive" && r.Version == "1.1"
}

// Parse consumes as many complete CRLF-terminated lines as are currently
// available in buf, advancing the state machine. It returns without error
// (and without reaching StateFinish) when the buffer holds only a partial
// line; the caller should call Parse again once more bytes have arrived.
// verifier may be nil if the request never reaches a path requiring
// authentication.
func (r *Request) Parse(buf *buffer.Buffer, verifier Verifier) error {
	for buf.ReadableBytes() > 0 && r.state != StateFinish {
		peek := buf.Peek()
		idx := bytes.Index(peek, []byte("\r\n"))

		if idx < 0 {
			if r.state == StateBody && len(peek) >= r.contentLength() {
				// No trailing CRLF, but the declared Content-Length has
				// arrived: treat everything currently buffered as the
				// body (original ParseBody_ behavior when the body isn't
				// itself CRLF-terminated).
				line := string(peek)
				if err := r.consumeBody(line, verifier); err != nil {
					return err
				}
				_ = buf.Retrieve(len(peek))
			}
			// Partial line with no CRLF yet: wait for more bytes.
			return nil
		}

		line := string(peek[:idx])
		switch r.state {
		case StateRequestLine:
			if err := r.parseRequestLine(line); err != nil {
				return err
			}
		case StateHeaders:
			if line == "" {
				// Explicit empty-line terminator: a body only follows
				// when one was actually declared (Content-Length > 0).
				// A POST with no declared body (absent or zero
				// Content-Length) finishes immediately instead of
				// waiting in StateBody for bytes that will never
				// arrive.
				if r.Method == "POST" && r.contentLength() > 0 {
					r.state = StateBody
				} else {
					r.state = StateFinish
				}
			} else if m := headerLineRE.FindStringSubmatch(line); m != nil {
				r.Headers[m[1]] = m[2]
			}
			// A non-matching, non-empty header line is tolerated and
			// skipped, matching the original's permissive behavior.
		case StateBody:
			if err := r.consumeBody(line, verifier); err != nil {
				return err
			}
		}

		if err := buf.RetrieveUntil(idx + 2); err != nil {
			return err
		}
	}
	return nil
}

// contentLength returns the parsed Content-Length header value, or 0 if
// absent or not a valid non-negative integer.
func (r *Request) contentLength() int {
	n, err := strconv.Atoi(r.Headers["Content-Length"])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (r *Request) parseRequestLine(line string) error {
	m := requestLineRE.FindStringSubmatch(line)
	if m == nil {
		return ErrMalformedRequestLine
	}
	r.Method, r.Path, r.Version = m[1], m[2], m[3]
	r.state = StateHeaders
	r.canonicalizePath()
	return nil
}

func (r *Request) canonicalizePath() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if defaultResourceNames[r.Path] {
		r.Path += ".html"
	}
}

func (r *Request) consumeBody(line string, verifier Verifier) error {
	r.Body = line
	r.parsePost(verifier)
	r.state = StateFinish
	return nil
}

// parsePost mirrors ParsePost_: for POST requests with an
// application/x-www-form-urlencoded body, decode the form and, if the
// canonicalized path is the registration or login page, consult the
// Verifier and rewrite Path to /welcome.html or /error.html accordingly.
func (r *Request) parsePost(verifier Verifier) {
	if r.Method != "POST" || r.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		return
	}
	r.Form = DecodeForm(r.Body)

	tag, ok := authTag[r.Path]
	if !ok || (tag != 0 && tag != 1) {
		return
	}
	isLogin := tag == 1
	if verifier == nil {
		r.Path = "/error.html"
		return
	}
	if verifier.Verify(r.Form["username"], r.Form["password"], isLogin) {
		r.Path = "/welcome.html"
	} else {
		r.Path = "/error.html"
	}
}
