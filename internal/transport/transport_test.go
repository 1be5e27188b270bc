package transport

import (
	"bytes"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const frames = "data: {\"type\":\"token\",\"token\":\"你好\"}\n\n"

func encode(t *testing.T, coding string, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "br":
		w = brotli.NewWriter(&buf)
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w = zw
	default:
		return raw
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("encode %s: %v", coding, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", coding, err)
	}
	return buf.Bytes()
}

func TestClientDecodesContentEncodings(t *testing.T) {
	for _, coding := range []string{"", "br", "gzip", "deflate", "zstd"} {
		coding := coding
		t.Run("coding="+coding, func(t *testing.T) {
			payload := encode(t, coding, []byte(frames))
			var gotAccept string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAccept = r.Header.Get("Accept-Encoding")
				w.Header().Set("Content-Type", "text/event-stream")
				if coding != "" {
					w.Header().Set("Content-Encoding", coding)
				}
				_, _ = w.Write(payload)
			}))
			defer ts.Close()

			req, _ := http.NewRequest(http.MethodPost, ts.URL, nil)
			resp, err := New(Options{}).Do(req)
			if err != nil {
				t.Fatalf("do failed: %v", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if string(body) != frames {
				t.Fatalf("unexpected body %q", body)
			}
			if gotAccept != AcceptEncoding {
				t.Fatalf("unexpected Accept-Encoding %q", gotAccept)
			}
		})
	}
}

func TestClientConvertsCharset(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String(frames)
	if err != nil {
		t.Fatalf("gbk encode: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=GBK")
		_, _ = w.Write([]byte(gbk))
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL, nil)
	resp, err := New(Options{}).Do(req)
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != frames {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestDecodeBodyRejectsUnknownEncoding(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"compress"}},
		Body:   io.NopCloser(bytes.NewReader([]byte("x"))),
	}
	if err := DecodeBody(resp); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestCharset(t *testing.T) {
	if got := Charset("text/event-stream; charset=UTF-8"); got != "utf-8" {
		t.Fatalf("unexpected charset %q", got)
	}
	if got := Charset("application/json"); got != "" {
		t.Fatalf("expected empty charset, got %q", got)
	}
}

func TestClientReturnsFailedStatusWithUndecodableBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "compress")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL, nil)
	resp, err := New(Options{}).Do(req)
	if err != nil {
		t.Fatalf("expected response, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "upstream down" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestClientRejectsUndecodableSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "compress")
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL, nil)
	if _, err := New(Options{}).Do(req); err == nil {
		t.Fatal("expected error for unsupported encoding on a 200")
	}
}

func TestFingerprintDialerHandshakesWithEachHello(t *testing.T) {
	for _, name := range []string{"safari", "chrome", "firefox"} {
		t.Run(name, func(t *testing.T) {
			var proto string
			var gotTLS bool
			ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				proto = r.Proto
				gotTLS = r.TLS != nil
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte(frames))
			}))
			defer ts.Close()

			hello, err := ParseHello(name)
			if err != nil {
				t.Fatalf("parse hello: %v", err)
			}
			roots := x509.NewCertPool()
			roots.AddCert(ts.Certificate())
			client := New(Options{TLSFingerprint: true, Hello: hello, RootCAs: roots})

			req, _ := http.NewRequest(http.MethodPost, ts.URL, nil)
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("do failed: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != frames {
				t.Fatalf("unexpected body %q", body)
			}
			if !gotTLS || proto != "HTTP/1.1" {
				t.Fatalf("expected HTTP/1.1 over TLS, got tls=%v proto=%q", gotTLS, proto)
			}
		})
	}
}

func TestFingerprintDialerVerifiesCertificate(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	if _, err := New(Options{TLSFingerprint: true}).Do(req); err == nil {
		t.Fatal("expected handshake failure against an untrusted certificate")
	}
}

func TestParseHello(t *testing.T) {
	if id, err := ParseHello(""); err != nil || id.Client == "" {
		t.Fatalf("expected default hello, got %v %v", id, err)
	}
	if id, err := ParseHello(" Chrome "); err != nil || id.Client != "Chrome" {
		t.Fatalf("unexpected chrome hello %v %v", id, err)
	}
	if _, err := ParseHello("netscape"); err == nil || !strings.Contains(err.Error(), "safari") {
		t.Fatalf("expected unknown hello error listing names, got %v", err)
	}
}
