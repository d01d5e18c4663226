// Package connection holds per-connection metadata shared by every request
// served on that connection.
package connection

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Context describes one live client connection.
// It is created on connect, read-only afterwards, and dropped on disconnect.
type Context struct {
	// ID uniquely identifies the connection in logs.
	ID string
	// RemoteAddr is the peer address.
	RemoteAddr net.Addr
	// LocalAddr is the address the connection was accepted on.
	LocalAddr net.Addr
	// Secure is true when the connection is TLS-terminated.
	Secure bool
	// ConnectedAt is when the connection was accepted (UTC).
	ConnectedAt time.Time
}

// RemoteHost returns the peer IP address.
func (c *Context) RemoteHost() string {
	host, _ := splitAddr(c.RemoteAddr)
	return host
}

// RemotePort returns the peer port, or -1 when unknown.
func (c *Context) RemotePort() int {
	_, port := splitAddr(c.RemoteAddr)
	return port
}

// LocalHost returns the local IP address.
func (c *Context) LocalHost() string {
	host, _ := splitAddr(c.LocalAddr)
	return host
}

// LocalPort returns the local port, or -1 when unknown.
func (c *Context) LocalPort() int {
	_, port := splitAddr(c.LocalAddr)
	return port
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", -1
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), a.Port
	case *net.UDPAddr:
		return a.IP.String(), a.Port
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), -1
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, -1
	}
	return host, port
}

type contextKey struct{}

// NewContext returns a copy of parent carrying the connection.
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey{}, c)
}

// FromContext returns the connection bound to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok && c != nil
}
