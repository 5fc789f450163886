package httpx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/ember/pkg/ember/buffer"
)

// Status is an HTTP response status used by Response.
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusForbidden           Status = 403
	StatusNotFound            Status = 404
	StatusInternalServerError Status = 500
)

func (s Status) reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	default:
		return "Internal Server Error"
	}
}

// errorBodies are the static bodies for responses that don't serve a file
// from disk (missing/forbidden/malformed resources), keeping the response
// builder mechanical as specified.
var errorBodies = map[Status]string{
	StatusBadRequest:          "<html><body><h1>400 Bad Request</h1></body></html>",
	StatusForbidden:           "<html><body><h1>403 Forbidden</h1></body></html>",
	StatusNotFound:            "<html><body><h1>404 Not Found</h1></body></html>",
	StatusInternalServerError: "<html><body><h1>500 Internal Server Error</h1></body></html>",
}

// mimeTypes is the minimal extension->Content-Type table needed to serve
// the whitelisted static resource set; the full MIME table is out of scope
// per spec.
var mimeTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
}

func mimeFor(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Resolve stats docRoot+path and returns the status a response for it
// should carry: StatusOK if it's a readable regular file, StatusNotFound if
// absent, StatusForbidden if it's not a regular file or unreadable.
func Resolve(docRoot, path string) (fullPath string, status Status) {
	fullPath = filepath.Join(docRoot, filepath.Clean("/"+path))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fullPath, StatusNotFound
		}
		return fullPath, StatusForbidden
	}
	if !info.Mode().IsRegular() {
		return fullPath, StatusForbidden
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return fullPath, StatusForbidden
	}
	f.Close()
	return fullPath, StatusOK
}

// BuildResponse writes a full HTTP/1.1 response (status line, headers,
// body) into out. For StatusOK it reads the file at fullPath; for any other
// status it writes the corresponding static error body. keepAlive controls
// the Connection header (and the accompanying Keep-Alive header).
func BuildResponse(out *buffer.Buffer, fullPath string, keepAlive bool, status Status) error {
	var body []byte
	var err error
	if status == StatusOK {
		body, err = os.ReadFile(fullPath)
		if err != nil {
			status = StatusNotFound
			body = []byte(errorBodies[StatusNotFound])
		}
	} else {
		body = []byte(errorBodies[status])
		if body == nil {
			body = []byte(errorBodies[StatusInternalServerError])
		}
	}

	out.AppendString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", int(status), status.reason()))
	if keepAlive {
		out.AppendString("Connection: keep-alive\r\n")
		out.AppendString("Keep-Alive: max=6, timeout=120\r\n")
	} else {
		out.AppendString("Connection: close\r\n")
	}
	contentType := "text/html"
	if status == StatusOK {
		contentType = mimeFor(fullPath)
	}
	out.AppendString(fmt.Sprintf("Content-Type: %s\r\n", contentType))
	out.AppendString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body)))
	out.Append(body)
	return nil
}
