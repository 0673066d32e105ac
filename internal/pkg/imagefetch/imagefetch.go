package imagefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
)

// DefaultContentType is used when neither the upstream header nor the body identify an image.
const DefaultContentType = "image/png"

const sniffLen = 3072

// ErrFetchFailed wraps every transport error and non-2xx upstream answer.
var ErrFetchFailed = errors.New("fetch failed")

// Image is an open upstream response body. Callers must close Body.
type Image struct {
	Body        io.ReadCloser
	ContentType string
}

type Fetcher struct {
	client *http.Client
}

// New returns a fetcher that gives up when connecting or waiting for response headers takes
// longer than timeout. The body is not bounded, so slow but live transfers complete.
// Redirects are followed.
func New(timeout time.Duration) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &Fetcher{client: &http.Client{Transport: transport}}
}

// NewFromEnv reads the timeout from FETCH_TIMEOUT.
func NewFromEnv() *Fetcher {
	return New(env.GetEnvDuration("FETCH_TIMEOUT", 15*time.Second))
}

// Fetch issues a single GET for url. It does not retry.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream answered %d", ErrFetchFailed, resp.StatusCode)
	}

	header := resp.Header.Get("Content-Type")
	if header != "" && !strings.Contains(header, "application") {
		return &Image{Body: resp.Body, ContentType: header}, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	head = head[:n]

	return &Image{
		Body: readCloser{
			Reader: io.MultiReader(bytes.NewReader(head), resp.Body),
			Closer: resp.Body,
		},
		ContentType: sniff(head),
	}, nil
}

func sniff(head []byte) string {
	mt := mimetype.Detect(head)
	if strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	return DefaultContentType
}

type readCloser struct {
	io.Reader
	io.Closer
}
