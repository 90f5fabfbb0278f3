// Package client speaks the kvs line protocol: one connection carries
// exactly one request and one response. Callers dial per request.
package client

import (
	"bufio"
	"net"

	"github.com/nicolagi/kvs/internal/kverr"
	"github.com/nicolagi/kvs/internal/protocol"
)

type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to a kvs-server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, kverr.Wrapf(err, kverr.IO, "dialing %q", addr)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

// Get returns the value for key; the second return value reports presence.
// A KeyNotFound answer from the server is presence false, not an error.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(protocol.Request{Op: protocol.OpGet, Key: key})
	if err != nil {
		if kverr.IsKind(err, kverr.KeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return resp.Text, true, nil
}

func (c *Client) Set(key, value string) error {
	_, err := c.roundTrip(protocol.Request{Op: protocol.OpSet, Key: key, Value: value})
	return err
}

func (c *Client) Remove(key string) error {
	_, err := c.roundTrip(protocol.Request{Op: protocol.OpRemove, Key: key})
	return err
}

func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	if _, err := c.w.WriteString(req.String()); err != nil {
		return protocol.Response{}, kverr.Wrap(err, kverr.IO)
	}
	if err := c.w.Flush(); err != nil {
		return protocol.Response{}, kverr.Wrap(err, kverr.IO)
	}
	line, err := c.r.ReadString('\n')
	if err != nil && line == "" {
		return protocol.Response{}, kverr.Wrap(err, kverr.IO)
	}
	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.Error {
		kind, err := kverr.ParseKind(resp.Text)
		if err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{}, kverr.New(kind)
	}
	return resp, nil
}

// Close shuts the connection down bidirectionally.
func (c *Client) Close() error {
	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return c.conn.Close()
}
