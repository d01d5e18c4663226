// Package request exposes a read view over one HTTP request: path
// components, headers, parameters, cookies, locales, attributes and the
// connection and session the request is bound to.
package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds how much of a request body is buffered.
const DefaultMaxBodyBytes int64 = 1 << 20

// ErrBodyTooLarge is returned when a request body exceeds the buffer limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Raw is the transport-neutral request as received. The core never mutates
// its fields; reading BodyReader consumes the stream.
type Raw struct {
	// Method is the request method, e.g. "GET".
	Method string
	// URI is the request target exactly as sent (origin or absolute form).
	URI string
	// Proto is the protocol version, e.g. "HTTP/1.1".
	Proto string
	// Host is the Host header value.
	Host string
	// Header holds the request headers.
	Header http.Header
	// Body is the fully buffered request body.
	Body []byte
	// BodyReader optionally streams the body instead of Body. When set and
	// Body is nil it is read at most once, either handed to the handler by
	// Context.Body or buffered for form parameters, whichever comes first.
	BodyReader io.Reader
}

// FromHTTP builds a Raw from a net/http request, buffering at most maxBody
// bytes of its body. A non-positive maxBody uses DefaultMaxBodyBytes.
func FromHTTP(r *http.Request, maxBody int64) (*Raw, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	raw := &Raw{
		Method: r.Method,
		URI:    r.RequestURI,
		Proto:  r.Proto,
		Host:   r.Host,
		Header: r.Header,
	}
	if raw.URI == "" && r.URL != nil {
		raw.URI = r.URL.RequestURI()
	}
	if raw.Header == nil {
		raw.Header = make(http.Header)
	}

	if r.Body == nil || r.Body == http.NoBody {
		return raw, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBody {
		return nil, ErrBodyTooLarge
	}
	raw.Body = body
	return raw, nil
}
