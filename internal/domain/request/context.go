package request

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/connection"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
	"github.com/Sentinel-Gate/httpbridge/internal/domain/session"
)

// DefaultEncoding is used when neither the request nor the options name a
// character encoding.
const DefaultEncoding = "ISO-8859-1"

// Principal identifies an authenticated caller.
type Principal interface {
	Name() string
}

// Options configures request views.
type Options struct {
	// DefaultEncoding applies when Content-Type carries no charset.
	DefaultEncoding string
	// DefaultLocale is returned when Accept-Language yields nothing.
	DefaultLocale language.Tag
	// Reporter receives field decode failures. Defaults to logging.
	Reporter ErrorReporter
	// Logger is the request-scoped logger.
	Logger *slog.Logger
	// MaxBodyBytes bounds how much of a streamed body is buffered for
	// parameter parsing. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Context is the read view over one request. It is owned by the goroutine
// serving the request and is not safe for concurrent use.
type Context struct {
	ctx   context.Context
	raw   *Raw
	comps route.Components
	opts  Options

	conn    *connection.Context
	binding *session.Binding

	params      paramSet
	body        []byte
	bodyState   bodyState
	cookies     []*http.Cookie
	locales     []language.Tag
	encoding    string
	attributes  map[string]any
	principal   Principal
	paramsReady bool
}

// New creates the request view. Connection and session bindings are taken
// from ctx once, here.
func New(ctx context.Context, raw *Raw, comps route.Components, opts Options) *Context {
	if opts.DefaultEncoding == "" {
		opts.DefaultEncoding = DefaultEncoding
	}
	if opts.DefaultLocale == language.Und {
		opts.DefaultLocale = language.AmericanEnglish
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reporter == nil {
		opts.Reporter = LogReporter(opts.Logger)
	}
	rc := &Context{
		ctx:   ctx,
		raw:   raw,
		comps: comps,
		opts:  opts,
	}
	rc.conn, _ = connection.FromContext(ctx)
	rc.binding, _ = session.FromContext(ctx)
	return rc
}

// Context returns the context.Context the request is served under.
func (c *Context) Context() context.Context { return c.ctx }

// Logger returns the request-scoped logger.
func (c *Context) Logger() *slog.Logger { return c.opts.Logger }

// Raw returns the underlying request.
func (c *Context) Raw() *Raw { return c.raw }

func (c *Context) Method() string { return c.raw.Method }
func (c *Context) Proto() string  { return c.raw.Proto }

// RequestURI returns the request path without the query string.
func (c *Context) RequestURI() string { return c.comps.Path() }

func (c *Context) QueryString() string { return c.comps.QueryString }
func (c *Context) ContextPath() string { return c.comps.ContextPath }
func (c *Context) PathInfo() string    { return c.comps.PathInfo }

// ServletPath returns the route part of the path. A route path of exactly
// "/" is reported as empty.
func (c *Context) ServletPath() string {
	if p := c.comps.RoutePath(); p != "/" {
		return p
	}
	return ""
}

// Route returns the matched route, or nil.
func (c *Context) Route() *route.Route { return c.comps.Route }

// Components returns the resolved path components.
func (c *Context) Components() route.Components { return c.comps }

// RequestURL reconstructs scheme://host[:port]path. The port is omitted
// when it is the scheme default.
func (c *Context) RequestURL() (string, error) {
	scheme, err := c.Scheme()
	if err != nil {
		return "", err
	}
	host, err := c.ServerName()
	if err != nil {
		return "", err
	}
	port, err := c.ServerPort()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	if strings.Contains(host, ":") {
		sb.WriteString("[" + host + "]")
	} else {
		sb.WriteString(host)
	}
	if (scheme == "http" && port != 80) || (scheme == "https" && port != 443) {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(port))
	}
	sb.WriteString(c.RequestURI())
	return sb.String(), nil
}

// Header returns the first value of the named header.
func (c *Context) Header(name string) string { return c.raw.Header.Get(name) }

// Headers returns every value of the named header.
func (c *Context) Headers(name string) []string { return c.raw.Header.Values(name) }

// HeaderNames returns the canonical header names, sorted.
func (c *Context) HeaderNames() []string {
	names := make([]string, 0, len(c.raw.Header))
	for name := range c.raw.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntHeader parses the named header as an integer. An absent header
// returns -1 and no error.
func (c *Context) IntHeader(name string) (int, error) {
	v := c.raw.Header.Get(name)
	if v == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1, &FormatError{Header: name, Value: v, Err: err}
	}
	return n, nil
}

// DateHeader parses the named header as an HTTP date or as decimal epoch
// milliseconds and returns epoch milliseconds. An absent header returns -1
// and no error.
func (c *Context) DateHeader(name string) (int64, error) {
	v := strings.TrimSpace(c.raw.Header.Get(name))
	if v == "" {
		return -1, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.UnixMilli(), nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1, &FormatError{Header: name, Value: v, Err: err}
	}
	return ms, nil
}

// ContentType returns the Content-Type header.
func (c *Context) ContentType() string { return c.raw.Header.Get("Content-Type") }

// ContentLength returns the declared body length, or -1 when absent or invalid.
func (c *Context) ContentLength() int64 {
	v := c.raw.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// CharacterEncoding returns the explicitly set encoding, else the
// Content-Type charset, else the configured default.
func (c *Context) CharacterEncoding() string {
	if c.encoding != "" {
		return c.encoding
	}
	if ct := c.ContentType(); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil && params["charset"] != "" {
			return params["charset"]
		}
	}
	return c.opts.DefaultEncoding
}

// SetCharacterEncoding overrides the body encoding. It has no effect once
// parameters were read.
func (c *Context) SetCharacterEncoding(enc string) error {
	if _, err := lookupEncoding(enc); err != nil {
		return err
	}
	c.encoding = enc
	return nil
}

type bodyState int

const (
	bodyUnread bodyState = iota
	bodyBuffered
	bodyStreamed
)

// Body returns the request body. A streamed body is handed out as is the
// first time, unless form parameters already buffered it; later calls on a
// handed-out stream return an empty reader.
func (c *Context) Body() io.Reader {
	if c.raw.BodyReader == nil || c.raw.Body != nil {
		return bytes.NewReader(c.raw.Body)
	}
	switch c.bodyState {
	case bodyBuffered:
		return bytes.NewReader(c.body)
	case bodyStreamed:
		return bytes.NewReader(nil)
	}
	c.bodyState = bodyStreamed
	return c.raw.BodyReader
}

// bufferedBody returns the whole body, buffering a streamed body once.
// It returns nil once the stream was handed to the handler.
func (c *Context) bufferedBody() ([]byte, error) {
	if c.raw.BodyReader == nil || c.raw.Body != nil {
		return c.raw.Body, nil
	}
	switch c.bodyState {
	case bodyBuffered:
		return c.body, nil
	case bodyStreamed:
		return nil, nil
	}

	limit := c.opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(c.raw.BodyReader, limit+1))
	c.bodyState = bodyBuffered
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	c.body = body
	return body, nil
}

// ParameterMap returns query and body parameters. Query values come first
// for each name. Body parameters are read only for POST requests with a
// form or multipart content type. The returned map is a copy.
func (c *Context) ParameterMap() map[string][]string {
	params := c.parameters()
	out := make(map[string][]string, len(params))
	for name, values := range params {
		out[name] = slices.Clone(values)
	}
	return out
}

func (c *Context) parameters() paramSet {
	if !c.paramsReady {
		c.params = c.parseParameters()
		c.paramsReady = true
	}
	return c.params
}

func (c *Context) parseParameters() paramSet {
	params := make(paramSet)
	report := func(err error) { c.opts.Reporter(c.ctx, err) }

	parsePairs(params, "query", c.comps.QueryString, nil, report)

	if c.raw.Method != http.MethodPost {
		return params
	}
	mediaType, mtParams, err := mime.ParseMediaType(c.ContentType())
	if err != nil || (mediaType != mimeForm && mediaType != mimeMultipart) {
		return params
	}
	body, err := c.bufferedBody()
	if err != nil {
		report(&FieldError{Source: "body", Err: err})
		return params
	}
	if len(body) == 0 {
		return params
	}

	switch mediaType {
	case mimeForm:
		dec, err := decoderFor(c.CharacterEncoding())
		if err != nil {
			report(&FieldError{Source: "form", Err: err})
			return params
		}
		parsePairs(params, "form", string(body), dec, report)
	case mimeMultipart:
		boundary := mtParams["boundary"]
		if boundary == "" {
			report(&FieldError{Source: "multipart", Err: errMissingBoundary})
			return params
		}
		parseMultipart(params, body, boundary, c.CharacterEncoding(), report)
	}
	return params
}

// Parameter returns the first value of the named parameter.
func (c *Context) Parameter(name string) (string, bool) {
	values := c.parameters()[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ParameterValues returns every value of the named parameter.
func (c *Context) ParameterValues(name string) []string {
	return slices.Clone(c.parameters()[name])
}

// ParameterNames returns the parameter names, sorted.
func (c *Context) ParameterNames() []string {
	params := c.parameters()
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cookies returns the request cookies. Never nil.
func (c *Context) Cookies() []*http.Cookie {
	if c.cookies == nil {
		parsed := (&http.Request{Header: http.Header{"Cookie": c.raw.Header.Values("Cookie")}}).Cookies()
		c.cookies = append([]*http.Cookie{}, parsed...)
	}
	return c.cookies
}

// Cookie returns the named cookie.
func (c *Context) Cookie(name string) (*http.Cookie, bool) {
	for _, ck := range c.Cookies() {
		if ck.Name == name {
			return ck, true
		}
	}
	return nil, false
}

// Locale returns the preferred client locale.
func (c *Context) Locale() language.Tag { return c.Locales()[0] }

// Locales returns client locales by descending preference. Never empty.
func (c *Context) Locales() []language.Tag {
	if c.locales == nil {
		c.locales = parseLocales(c.raw.Header.Values("Accept-Language"), c.opts.DefaultLocale)
	}
	return c.locales
}

// Attribute returns a request-scoped attribute.
func (c *Context) Attribute(name string) (any, bool) {
	v, ok := c.attributes[name]
	return v, ok
}

// SetAttribute stores a request-scoped attribute. A nil value removes it.
func (c *Context) SetAttribute(name string, value any) {
	if value == nil {
		c.RemoveAttribute(name)
		return
	}
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[name] = value
}

func (c *Context) RemoveAttribute(name string) {
	delete(c.attributes, name)
}

// AttributeNames returns attribute names, sorted.
func (c *Context) AttributeNames() []string {
	names := make([]string, 0, len(c.attributes))
	for name := range c.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connection returns the bound connection.
func (c *Context) Connection() (*connection.Context, error) {
	if c.conn == nil {
		return nil, &UnboundContextError{Binding: "connection"}
	}
	return c.conn, nil
}

// RemoteAddr returns the client IP address.
func (c *Context) RemoteAddr() (string, error) {
	conn, err := c.Connection()
	if err != nil {
		return "", err
	}
	return conn.RemoteHost(), nil
}

// RemoteHost returns the client host. No reverse lookup is performed, so
// this is the IP address.
func (c *Context) RemoteHost() (string, error) {
	return c.RemoteAddr()
}

func (c *Context) RemotePort() (int, error) {
	conn, err := c.Connection()
	if err != nil {
		return -1, err
	}
	return conn.RemotePort(), nil
}

// LocalAddr returns the IP address the connection was accepted on.
func (c *Context) LocalAddr() (string, error) {
	conn, err := c.Connection()
	if err != nil {
		return "", err
	}
	return conn.LocalHost(), nil
}

// LocalName returns the server name the client addressed.
func (c *Context) LocalName() (string, error) {
	return c.ServerName()
}

func (c *Context) LocalPort() (int, error) {
	conn, err := c.Connection()
	if err != nil {
		return -1, err
	}
	return conn.LocalPort(), nil
}

// ServerName returns the host from the Host header, falling back to the
// local address.
func (c *Context) ServerName() (string, error) {
	conn, err := c.Connection()
	if err != nil {
		return "", err
	}
	if host, _, ok := c.hostHeader(); ok {
		return host, nil
	}
	return conn.LocalHost(), nil
}

// ServerPort returns the port from the Host header. When the Host header has
// no port the scheme default is used; without a Host header, the local port.
func (c *Context) ServerPort() (int, error) {
	conn, err := c.Connection()
	if err != nil {
		return -1, err
	}
	if _, port, ok := c.hostHeader(); ok {
		if port >= 0 {
			return port, nil
		}
		if conn.Secure {
			return 443, nil
		}
		return 80, nil
	}
	return conn.LocalPort(), nil
}

// hostHeader splits the Host header. port is -1 when absent.
func (c *Context) hostHeader() (host string, port int, ok bool) {
	h := c.raw.Host
	if h == "" {
		h = c.raw.Header.Get("Host")
	}
	if h == "" {
		return "", -1, false
	}
	hostPart, portPart, err := net.SplitHostPort(h)
	if err != nil {
		return strings.Trim(h, "[]"), -1, true
	}
	p, err := strconv.Atoi(portPart)
	if err != nil {
		return hostPart, -1, true
	}
	return hostPart, p, true
}

func (c *Context) IsSecure() (bool, error) {
	conn, err := c.Connection()
	if err != nil {
		return false, err
	}
	return conn.Secure, nil
}

// Scheme returns "https" on TLS connections, else "http".
func (c *Context) Scheme() (string, error) {
	secure, err := c.IsSecure()
	if err != nil {
		return "", err
	}
	if secure {
		return "https", nil
	}
	return "http", nil
}

// Session returns the session bound to the request. When none is live and
// create is true a new one is minted; otherwise (nil, nil) is returned.
func (c *Context) Session(create bool) (*session.Session, error) {
	if c.binding == nil {
		return nil, &UnboundContextError{Binding: "session"}
	}
	return c.binding.Session(c.ctx, create)
}

// RequestedSessionID returns the session ID the client presented.
func (c *Context) RequestedSessionID() string {
	if c.binding == nil {
		return ""
	}
	return c.binding.RequestedID()
}

func (c *Context) RequestedSessionIDFromCookie() bool {
	return c.binding != nil && c.binding.Source() == session.SourceCookie
}

func (c *Context) RequestedSessionIDFromURL() bool {
	return c.binding != nil && c.binding.Source() == session.SourceURL
}

// RequestedSessionIDValid reports whether the presented ID names a live session.
func (c *Context) RequestedSessionIDValid() bool {
	return c.binding != nil && c.binding.RequestedIDValid()
}

// AuthType returns the raw WWW-Authenticate header.
func (c *Context) AuthType() string { return c.raw.Header.Get("WWW-Authenticate") }

// RemoteUser returns the raw Authorization header.
func (c *Context) RemoteUser() string { return c.raw.Header.Get("Authorization") }

func (c *Context) UserPrincipal() Principal { return c.principal }

// SetUserPrincipal is called by authentication interceptors.
func (c *Context) SetUserPrincipal(p Principal) { c.principal = p }
