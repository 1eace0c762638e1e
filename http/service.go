package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Service is a unit of request handling that can report whether it is able
// to accept work. Callers check Ready before each Call.
type Service interface {
	// Ready never blocks. A nil error means Call may be invoked.
	Ready() error
	Call(req *http.Request) (*http.Response, error)
}

// ServiceFunc adapts a function to a Service that is always ready.
type ServiceFunc func(req *http.Request) (*http.Response, error)

func (f ServiceFunc) Ready() error { return nil }

func (f ServiceFunc) Call(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Handler serves svc over HTTP. Not-ready services get 503 (429 when rate
// limited) and Call errors get 502, both as JSON errors.
func Handler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(); err != nil {
			HandleError(w, err)
			return
		}

		resp, err := svc.Call(r)
		if err != nil {
			if r.Context().Err() != nil {
				slog.DebugContext(r.Context(), "request cancelled", "path", r.URL.Path, "err", err)
				return
			}
			HandleError(w, fmt.Errorf("call downstream: %w: %w", errBadGateway, err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		for k, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			slog.WarnContext(r.Context(), "failed to copy response body", "err", err)
		}
	})
}

var errBadGateway = errors.New("bad gateway")

// HandlerService runs h in-process and captures its response. The returned
// Service is always ready.
func HandlerService(h http.Handler) Service {
	return ServiceFunc(func(req *http.Request) (*http.Response, error) {
		buf := &responseBuffer{header: make(http.Header)}
		h.ServeHTTP(buf, req)
		return buf.response(req), nil
	})
}

type responseBuffer struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *responseBuffer) Header() http.Header {
	return b.header
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(p)
}

func (b *responseBuffer) response(req *http.Request) *http.Response {
	b.WriteHeader(http.StatusOK)
	header := b.header.Clone()
	header.Set("Content-Length", strconv.Itoa(b.body.Len()))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", b.status, http.StatusText(b.status)),
		StatusCode:    b.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(b.body.Bytes())),
		ContentLength: int64(b.body.Len()),
		Request:       req,
	}
}

// Headers set on proxied requests to carry the authenticated identity.
// Client supplied values are always removed first.
const (
	HeaderPrincipal = "X-Sigv4gate-Principal"
	HeaderAccessKey = "X-Sigv4gate-Access-Key"
)

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyService forwards requests to an upstream base URL.
type ProxyService struct {
	target *url.URL
	rt     http.RoundTripper
}

// Transport returns a Service forwarding every request to target through rt.
// A nil rt means http.DefaultTransport.
func Transport(rt http.RoundTripper, target *url.URL) *ProxyService {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &ProxyService{target: target, rt: rt}
}

func (p *ProxyService) Ready() error { return nil }

func (p *ProxyService) Call(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.RequestURI = ""
	out.URL.Scheme = p.target.Scheme
	out.URL.Host = p.target.Host
	out.URL.Path, out.URL.RawPath = joinURLPath(p.target, req.URL)
	out.Host = p.target.Host

	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	out.Header.Del(HeaderPrincipal)
	out.Header.Del(HeaderAccessKey)
	if principal, ok := PrincipalFromContext(req.Context()); ok {
		out.Header.Set(HeaderPrincipal, principal.String())
		out.Header.Set(HeaderAccessKey, principal.AccessKey)
	}

	out.Header.Set("X-Forwarded-Host", req.Host)
	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		out.Header.Set("X-Forwarded-For", ip)
	}

	resp, err := p.rt.RoundTrip(out)
	if err != nil {
		return nil, fmt.Errorf("proxy to %s: %w", p.target.Host, err)
	}

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func joinURLPath(base, u *url.URL) (path, rawPath string) {
	if base.Path == "" || base.Path == "/" {
		return u.Path, u.RawPath
	}
	path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(u.Path, "/")
	if u.RawPath == "" && base.RawPath == "" {
		return path, ""
	}
	rawPath = strings.TrimSuffix(base.EscapedPath(), "/") + "/" + strings.TrimPrefix(u.EscapedPath(), "/")
	return path, rawPath
}
