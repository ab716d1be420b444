package offline

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/liftlog/internal/client/remote"
)

// CaptureTransport queues mutating requests that fail without any HTTP
// response. Reads, auth endpoints and requests whose caller gave up are
// passed through untouched.
type CaptureTransport struct {
	Base     http.RoundTripper
	Queue    *Queue
	Notifier Notifier
}

func (t *CaptureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !remote.IsMutation(req.Method) || remote.IsAuthEndpoint(req.URL.Path) {
		return t.base().RoundTrip(req)
	}

	body, err := readBody(req)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	resp, err := t.base().RoundTrip(out)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	t.Queue.Enqueue(req.Method, req.URL.String(), body)
	if t.Notifier != nil {
		t.Notifier.Notify(QueuedMessage)
	}
	return nil, fmt.Errorf("%w: %w", ErrQueued, err)
}

func (t *CaptureTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return io.ReadAll(req.Body)
}
