package transport

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// AcceptEncoding lists the codings DecodeBody understands.
const AcceptEncoding = "br, zstd, gzip, deflate"

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// DecodeBody replaces resp.Body with a reader that undoes Content-Encoding and
// converts a non UTF-8 charset to UTF-8. Both layers are streaming: partial
// multi-byte sequences are held until the next read completes them.
func DecodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}
	body, err := decodeContentEncoding(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return err
	}
	if body != resp.Body {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}
	resp.Body = decodeCharset(resp.Header.Get("Content-Type"), body)
	return nil
}

func decodeContentEncoding(coding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(coding)) {
	case "", "identity":
		return body, nil
	case "br":
		return readCloser{Reader: brotli.NewReader(body), close: body.Close}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return readCloser{Reader: zr, close: func() error {
			_ = zr.Close()
			return body.Close()
		}}, nil
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w", err)
		}
		return readCloser{Reader: zr, close: func() error {
			_ = zr.Close()
			return body.Close()
		}}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return body.Close()
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", coding)
	}
}

func decodeCharset(contentType string, body io.ReadCloser) io.ReadCloser {
	charset := Charset(contentType)
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	return readCloser{Reader: transform.NewReader(body, enc.NewDecoder()), close: body.Close}
}

// Charset returns the lower-cased charset parameter of a Content-Type value.
func Charset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}
