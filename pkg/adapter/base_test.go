package adapter

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoFactory serves line echo connections.
type echoFactory struct{}

type echoConn struct{ conn net.Conn }

func (echoFactory) NewConnection(conn net.Conn) ConnectionHandler { return &echoConn{conn: conn} }

func (c *echoConn) Serve(ctx context.Context) {
	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if _, err := c.conn.Write([]byte(line)); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func startBase(t *testing.T, cfg BaseConfig, preAccept PreAccept) (*BaseAdapter, context.CancelFunc, <-chan error) {
	t.Helper()
	b := NewBaseAdapter(cfg, "TEST")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.ServeWithFactory(ctx, echoFactory{}, preAccept) }()
	require.NotEmpty(t, b.Addr())
	t.Cleanup(cancel)
	return b, cancel, errCh
}

func TestBaseAdapterServesAndShutsDown(t *testing.T) {
	b, cancel, errCh := startBase(t, BaseConfig{BindAddress: "127.0.0.1", ShutdownTimeout: time.Second}, nil)

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
	assert.Equal(t, int32(1), b.ActiveConnections())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestBaseAdapterPreAcceptRejects(t *testing.T) {
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1"}, func(net.Conn) bool { return false })

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "rejected connection is closed")
}

func TestBaseAdapterListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", Port: port}, "TEST")
	err = b.ServeWithFactory(context.Background(), echoFactory{}, nil)
	assert.Error(t, err)
	assert.Equal(t, "", b.Addr())
}

func TestBaseAdapterStopIsIdempotent(t *testing.T) {
	b, _, errCh := startBase(t, BaseConfig{BindAddress: "127.0.0.1", ShutdownTimeout: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
	require.NoError(t, b.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
