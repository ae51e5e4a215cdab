package httpclient

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NewCompressionHandler returns the handler that advertises gzip support and
// transparently decompresses gzip-encoded responses.
//
// Requests that already carry an Accept-Encoding header are left alone and
// their responses are passed through as received.
func NewCompressionHandler() Handler {
	return compressionHandler{}
}

type compressionHandler struct{}

func (compressionHandler) Kind() HandlerKind { return KindCompression }

func (compressionHandler) Wrap(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Accept-Encoding") != "" {
			return next.RoundTrip(req)
		}

		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := next.RoundTrip(req)
		if err != nil || resp == nil || resp.Body == nil {
			return resp, err
		}

		if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
			return resp, nil
		}

		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			if err == io.EOF {
				// Empty body with a gzip header.
				return resp, nil
			}
			_ = resp.Body.Close()
			return nil, err
		}

		resp.Body = &gzipBody{zr: zr, body: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
		return resp, nil
	})
}

type gzipBody struct {
	zr   *gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) {
	return b.zr.Read(p)
}

func (b *gzipBody) Close() error {
	_ = b.zr.Close()
	return b.body.Close()
}
