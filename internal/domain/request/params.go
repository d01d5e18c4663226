package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	mimeForm      = "application/x-www-form-urlencoded"
	mimeMultipart = "multipart/form-data"
)

// paramSet accumulates values per name in arrival order.
type paramSet map[string][]string

func (p paramSet) add(name, value string) {
	p[name] = append(p[name], value)
}

// parsePairs decodes an urlencoded "a=1&b=2" string. Pairs that fail to
// decode are skipped and passed to report. Values are transcoded with dec
// when it is non-nil.
func parsePairs(dst paramSet, source, s string, dec *encoding.Decoder, report func(error)) {
	for s != "" {
		var pair string
		pair, s, _ = strings.Cut(s, "&")
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			report(&FieldError{Source: source, Field: rawKey, Err: err})
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			report(&FieldError{Source: source, Field: key, Err: err})
			continue
		}
		if key == "" {
			continue
		}
		if dec != nil {
			if key, err = dec.String(key); err != nil {
				report(&FieldError{Source: source, Field: rawKey, Err: err})
				continue
			}
			if value, err = dec.String(value); err != nil {
				report(&FieldError{Source: source, Field: key, Err: err})
				continue
			}
		}
		dst.add(key, value)
	}
}

// parseMultipart merges the non-file fields of a multipart body.
func parseMultipart(dst paramSet, body []byte, boundary, defaultCharset string, report func(error)) {
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			report(&FieldError{Source: "multipart", Err: err})
			return
		}

		name := part.FormName()
		if name == "" || part.FileName() != "" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			report(&FieldError{Source: "multipart", Field: name, Err: err})
			continue
		}

		charset := defaultCharset
		if ct := part.Header.Get("Content-Type"); ct != "" {
			if _, params, err := mime.ParseMediaType(ct); err == nil && params["charset"] != "" {
				charset = params["charset"]
			}
		}
		dec, err := decoderFor(charset)
		if err != nil {
			report(&FieldError{Source: "multipart", Field: name, Err: err})
			continue
		}
		value := string(data)
		if dec != nil {
			if value, err = dec.String(value); err != nil {
				report(&FieldError{Source: "multipart", Field: name, Err: err})
				continue
			}
		}
		dst.add(name, value)
	}
}

// decoderFor returns a decoder turning charset bytes into UTF-8, or nil when
// the charset already is UTF-8.
func decoderFor(charset string) (*encoding.Decoder, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, nil
	}
	return enc.NewDecoder(), nil
}

// lookupEncoding resolves a charset label. UTF-8 resolves to nil.
func lookupEncoding(charset string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported character encoding %q: %w", charset, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}
