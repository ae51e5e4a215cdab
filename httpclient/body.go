package httpclient

import (
	"bytes"
	"io"
	"net/http"
)

// hasBody reports whether req carries a request body.
func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}

// isReplayable reports whether req can be sent again without buffering:
// it has no body, or its body can be recreated through GetBody.
func isReplayable(req *http.Request) bool {
	return !hasBody(req) || req.GetBody != nil
}

// hasKnownLength reports whether a request body of unknown origin has a
// declared length. A zero length with a body present means unknown.
func hasKnownLength(req *http.Request) bool {
	return req.ContentLength > 0
}

// hasUnknownLength reports whether req streams a body whose length was
// declared unknown (-1).
func hasUnknownLength(req *http.Request) bool {
	return hasBody(req) && req.ContentLength < 0
}

// bufferBody returns a shallow copy of req whose body is held in memory and
// can be recreated through GetBody. req itself is left untouched apart from
// its body being consumed and closed.
func bufferBody(req *http.Request) (*http.Request, error) {
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}

	buffered := req.Clone(req.Context())
	buffered.ContentLength = int64(len(data))
	buffered.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	buffered.Body, _ = buffered.GetBody()
	return buffered, nil
}

// resend returns a copy of req with a fresh body, ready to be sent again.
// req must be replayable.
func resend(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if !hasBody(req) {
		return clone, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// drainAndClose discards the rest of resp's body so the connection can be
// reused, then closes it.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

// maxDrainBytes bounds how much of an abandoned response is read.
const maxDrainBytes = 4 << 10
