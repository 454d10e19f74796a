package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rotctlClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (c *rotctlClient) send(line string) {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(c.t, err)
}

func (c *rotctlClient) expect(lines ...string) {
	c.t.Helper()
	for _, want := range lines {
		got, err := c.r.ReadString('\n')
		require.NoError(c.t, err)
		assert.Equal(c.t, want+"\n", got)
	}
}

func newRotctl(t *testing.T, h *harness) *rotctlClient {
	client, server := net.Pipe()
	go h.s.handleRotctld(server)
	t.Cleanup(func() { client.Close() })
	client.SetDeadline(time.Now().Add(5 * time.Second))
	return &rotctlClient{t: t, conn: client, r: bufio.NewReader(client)}
}

func TestRotctld(t *testing.T) {
	h := newHarness(t)
	h.dev.AzPos, h.dev.ElPos = 270.5, 10
	h.s.pollOnce()
	h.conn.Reset()
	c := newRotctl(t, h)

	c.send("p")
	c.expect("270.500000", "10.000000")

	c.send(`+\get_pos`)
	c.expect("get_pos:", "Azimuth: 270.500000", "Elevation: 10.000000", "RPRT 0")

	c.send("P 180 45")
	c.expect("RPRT 0")
	c.send("P -90 20")
	c.expect("RPRT 0")
	c.send("P 10")
	c.expect("RPRT -22")
	c.send("P 10 200")
	c.expect("RPRT -22")

	c.send("M 2 50")
	c.expect("RPRT 0")
	c.send("M 16 50")
	c.expect("RPRT 0")
	c.send("M 3 50")
	c.expect("RPRT -22")

	c.send("S")
	c.expect("RPRT 0")
	c.send("K")
	c.expect("RPRT 0")

	c.send("_")
	c.expect("K3NG " + h.dev.Version)

	c.send("x")
	c.expect("RPRT -22")

	assert.Equal(t, []string{`\?GA180.00`, `\?GE45.00`, `\?GA270.00`, `\?GE20.00`, `\?GA10.00`, `\?RU`, `\?RR`, `\?SS`, `\P`, `\?CV`}, h.conn.Sent)
}

func TestRotctldDeviceError(t *testing.T) {
	h := newHarness(t)
	h.dev.Restart()
	c := newRotctl(t, h)
	c.send("S")
	c.expect("RPRT -9")
}

func TestRotctldGetPosAfterFailedPoll(t *testing.T) {
	h := newHarness(t)
	h.dev.AzPos = 90
	h.s.pollOnce()
	h.dev.Restart()
	h.s.pollOnce()
	c := newRotctl(t, h)

	c.send("p")
	c.expect("RPRT -9")
	c.send(`+\get_pos`)
	c.expect("get_pos:", "RPRT -9")
}

func TestServeRotctldStops(t *testing.T) {
	h := newHarness(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.serveRotctld(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	fmt.Fprintf(conn, "p\n")
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "0.000000\n", line)
	conn.Close()

	cancel()
	assert.NoError(t, <-done)
}
