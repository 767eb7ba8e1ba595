// Package httpclient builds the outbound HTTP clients used by the geocoder
// and the content generator.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// New returns a client with the given overall timeout. A non-empty
// userAgent is set on every request that does not carry one.
func New(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(userAgent),
	}
}

// Transport clones the default transport, honouring HTTP(S)_PROXY.
func Transport(userAgent string) http.RoundTripper {
	var base *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		base = t.Clone()
	} else {
		base = &http.Transport{}
	}
	base.Proxy = http.ProxyFromEnvironment
	if userAgent == "" {
		return base
	}
	return &uaTransport{base: base, userAgent: userAgent}
}

type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// ResponseTooLargeError reports a body that exceeded its read limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsResponseTooLarge reports whether err is a ResponseTooLargeError.
func IsResponseTooLarge(err error) bool {
	var limitErr ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// ReadAllWithLimit reads r fully, failing once more than limit bytes arrive.
// A non-positive limit reads without bound.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
