package httpx

import (
	"testing"

	"github.com/yourusername/ember/pkg/ember/buffer"
)

type fakeVerifier struct {
	allow bool
	gotName, gotPwd string
	gotLogin bool
}

func (f *fakeVerifier) Verify(name, pwd string, isLogin bool) bool {
	f.gotName, f.gotPwd, f.gotLogin = name, pwd, isLogin
	return f.allow
}

// S1: GET index with keep-alive.
func TestS1GetIndexKeepAlive(t *testing.T) {
	buf := buffer.New()
	buf.AppendString("GET / HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")

	req := NewRequest()
	if err := req.Parse(buf, nil); err != nil {
		t.Fatal(err)
	}
	if !req.Done() {
		t.Fatalf("expected FINISH state, got %v", req.State())
	}
	if req.Method != "GET" || req.Path != "/index.html" || req.Version != "1.1" {
		t.Fatalf("got method=%q path=%q version=%q", req.Method, req.Path, req.Version)
	}
	if !req.IsKeepAlive() {
		t.Fatal("expected keep-alive")
	}
}

// S2/S3: POST login success/failure rewrites path.
func TestS2S3PostLogin(t *testing.T) {
	for _, tc := range []struct {
		name      string
		allow     bool
		wantPath  string
	}{
		{"success", true, "/welcome.html"},
		{"failure", false, "/error.html"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			body := "username=foo&password=bar"
			raw := "POST /login HTTP/1.1\r\nHost: x\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: " +
				itoa(len(body)) + "\r\n\r\n" + body

			buf := buffer.New()
			buf.AppendString(raw)

			v := &fakeVerifier{allow: tc.allow}
			req := NewRequest()
			if err := req.Parse(buf, v); err != nil {
				t.Fatal(err)
			}
			if !req.Done() {
				t.Fatalf("expected FINISH, got %v", req.State())
			}
			if req.Path != tc.wantPath {
				t.Fatalf("got path %q want %q", req.Path, tc.wantPath)
			}
			if v.gotName != "foo" || v.gotPwd != "bar" || !v.gotLogin {
				t.Fatalf("verifier called with wrong args: %+v", v)
			}
		})
	}
}

func TestByteByByteParsingReachesFinishOnlyWhenValid(t *testing.T) {
	raw := "GET /index HTTP/1.1\r\nHost: x\r\n\r\n"
	buf := buffer.New()
	req := NewRequest()
	for i := 0; i < len(raw); i++ {
		buf.AppendString(string(raw[i]))
		if err := req.Parse(buf, nil); err != nil {
			t.Fatal(err)
		}
	}
	if !req.Done() {
		t.Fatalf("expected FINISH after full valid request, got %v", req.State())
	}
}

func TestMalformedRequestLineErrors(t *testing.T) {
	buf := buffer.New()
	buf.AppendString("NOT A REQUEST LINE\r\n")
	req := NewRequest()
	if err := req.Parse(buf, nil); err != ErrMalformedRequestLine {
		t.Fatalf("expected ErrMalformedRequestLine, got %v", err)
	}
}

func TestPartialInputLeavesStatePending(t *testing.T) {
	buf := buffer.New()
	buf.AppendString("GET /index.html HTTP/1.1\r\nHost: x\r\n") // no terminating blank line yet
	req := NewRequest()
	if err := req.Parse(buf, nil); err != nil {
		t.Fatal(err)
	}
	if req.Done() {
		t.Fatal("expected parser to still be waiting for the blank line")
	}
	if req.State() != StateHeaders {
		t.Fatalf("expected StateHeaders, got %v", req.State())
	}
}

// A POST with no declared body must finish on the blank line rather than
// wait forever in StateBody for bytes that will never arrive.
func TestPostWithNoContentLengthFinishesImmediately(t *testing.T) {
	buf := buffer.New()
	buf.AppendString("POST /login HTTP/1.1\r\nHost: x\r\n\r\n")

	req := NewRequest()
	if err := req.Parse(buf, nil); err != nil {
		t.Fatal(err)
	}
	if !req.Done() {
		t.Fatalf("expected FINISH, got %v", req.State())
	}
}

// A POST with an explicit zero Content-Length behaves the same way.
func TestPostWithZeroContentLengthFinishesImmediately(t *testing.T) {
	buf := buffer.New()
	buf.AppendString("POST /login HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n")

	req := NewRequest()
	if err := req.Parse(buf, nil); err != nil {
		t.Fatal(err)
	}
	if !req.Done() {
		t.Fatalf("expected FINISH, got %v", req.State())
	}
}

func TestResetReturnsToRequestLine(t *testing.T) {
	req := NewRequest()
	buf := buffer.New()
	buf.AppendString("GET / HTTP/1.1\r\n\r\n")
	if err := req.Parse(buf, nil); err != nil {
		t.Fatal(err)
	}
	req.Reset()
	if req.State() != StateRequestLine {
		t.Fatalf("expected StateRequestLine after Reset, got %v", req.State())
	}
	if len(req.Headers) != 0 || req.Path != "" {
		t.Fatal("expected fields cleared after Reset")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
