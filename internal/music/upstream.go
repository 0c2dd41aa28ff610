package music

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultReadTimeout bounds how long an upstream body may stay silent
	// while the transcoder is waiting for bytes.
	DefaultReadTimeout    = 10 * time.Second
	responseHeaderTimeout = 15 * time.Second
)

var ErrUpstreamStalled = errors.New("upstream stalled")

// streamClient has no overall timeout since streams are long-lived; stalls
// after the headers are caught by idleReader.
var streamClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	},
}

// idleReader closes the body and calls onStall when a single Read waits
// longer than timeout. The clock only runs inside Read, so a paused
// consumer never trips it.
type idleReader struct {
	body    io.ReadCloser
	timeout time.Duration
	onStall func()
}

func newIdleReader(body io.ReadCloser, timeout time.Duration, onStall func()) *idleReader {
	return &idleReader{body: body, timeout: timeout, onStall: onStall}
}

func (r *idleReader) Read(p []byte) (int, error) {
	timer := time.AfterFunc(r.timeout, func() {
		_ = r.body.Close()
		if r.onStall != nil {
			r.onStall()
		}
	})
	n, err := r.body.Read(p)
	if !timer.Stop() {
		return n, ErrUpstreamStalled
	}
	return n, err
}

func (r *idleReader) Close() error {
	return r.body.Close()
}
