package freematics

import (
	"net"
	"sync"

	"github.com/taoyao-code/tracker-server/internal/protocol/checksum"
)

type fakeConn struct {
	id     string
	remote net.Addr

	mu     sync.Mutex
	writes []string
	err    error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, remote: &net.TCPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 40112}}
}

func (c *fakeConn) ID() string           { return c.id }
func (c *fakeConn) RemoteAddr() net.Addr { return c.remote }

func (c *fakeConn) Write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(b))
	return c.err
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func signed(text string) []byte { return []byte(checksum.Sign(text)) }
