package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// Timeout bounds the whole exchange including the body. Streaming callers
	// leave it at zero.
	Timeout time.Duration
	// TLSFingerprint dials TLS through utls with a browser client hello.
	TLSFingerprint bool
	// Hello picks the browser hello. The zero value means Safari.
	Hello utls.ClientHelloID
	// RootCAs overrides the system pool, for private backends.
	RootCAs *x509.CertPool
}

var hellos = map[string]utls.ClientHelloID{
	"safari":  utls.HelloSafari_Auto,
	"chrome":  utls.HelloChrome_Auto,
	"firefox": utls.HelloFirefox_Auto,
	"edge":    utls.HelloEdge_Auto,
	"ios":     utls.HelloIOS_Auto,
}

// ParseHello resolves a browser name to its client hello. An empty name is
// Safari.
func ParseHello(name string) (utls.ClientHelloID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return utls.HelloSafari_Auto, nil
	}
	id, ok := hellos[name]
	if !ok {
		names := make([]string, 0, len(hellos))
		for n := range hellos {
			names = append(names, n)
		}
		sort.Strings(names)
		return utls.ClientHelloID{}, fmt.Errorf("unknown tls hello %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return id, nil
}

type Client struct {
	http *http.Client
}

func New(opts Options) *Client {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   false,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         (&net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: opts.RootCAs},
		// Content-Encoding is handled by DecodeBody so br and zstd work too.
		DisableCompression: true,
	}
	if opts.TLSFingerprint {
		hello := opts.Hello
		if hello.Client == "" {
			hello = utls.HelloSafari_Auto
		}
		base.DialTLSContext = fingerprintTLSDialer(hello, opts.RootCAs)
	}
	return &Client{http: &http.Client{Timeout: opts.Timeout, Transport: base}}
}

// Do sends req and returns a response whose body is already decoded from its
// Content-Encoding and charset. Non-2xx responses whose coding cannot be
// decoded are returned as received.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := DecodeBody(resp); err != nil {
		// A failed status is reported with whatever body came back.
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp, nil
		}
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func fingerprintTLSDialer(hello utls.ClientHelloID, roots *x509.CertPool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	var dialer net.Dialer
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		plainConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		uConn := utls.UClient(plainConn, &utls.Config{ServerName: host, RootCAs: roots}, hello)
		if err := forceHTTP11ALPN(uConn); err != nil {
			_ = plainConn.Close()
			return nil, err
		}
		err = uConn.HandshakeContext(ctx)
		if err != nil {
			_ = plainConn.Close()
			return nil, err
		}
		if negotiated := uConn.ConnectionState().NegotiatedProtocol; negotiated != "" && negotiated != "http/1.1" {
			_ = uConn.Close()
			return nil, fmt.Errorf("unexpected ALPN protocol negotiated: %s", negotiated)
		}
		return uConn, nil
	}
}

// http.Transport speaks HTTP/1.1 over a custom DialTLSContext, so the hello
// must not advertise h2.
func forceHTTP11ALPN(uConn *utls.UConn) error {
	if err := uConn.BuildHandshakeState(); err != nil {
		return err
	}
	for _, ext := range uConn.Extensions {
		alpnExt, ok := ext.(*utls.ALPNExtension)
		if !ok {
			continue
		}
		alpnExt.AlpnProtocols = []string{"http/1.1"}
		return nil
	}
	return nil
}
