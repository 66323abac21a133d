package server_test

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/kvs"
	"github.com/dreamsxin/kvs/client"
	"github.com/dreamsxin/kvs/pool"
	"github.com/dreamsxin/kvs/server"
	"github.com/dreamsxin/kvs/storage"
)

func startServer(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "kvs-server-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	eng, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	p, err := pool.NewNaivePool(4)
	require.NoError(t, err)

	srv := server.New(eng, p, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(addr) }()

	// Give the listener a moment to bind before dialing.
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr
}

func TestClientServerRoundTrip(t *testing.T) {
	addr := startServer(t)

	c, err := client.Connect(addr)
	require.NoError(t, err)

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set("k", "v"))

	value, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)

	require.NoError(t, c.Remove("k"))

	_, ok, err = c.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	err = c.Remove("k")
	require.True(t, kvs.IsKeyNotFound(err))
}

func TestClientServerSetOverwrite(t *testing.T) {
	addr := startServer(t)
	c, err := client.Connect(addr)
	require.NoError(t, err)

	require.NoError(t, c.Set("k", "a"))
	require.NoError(t, c.Set("k", "b"))

	value, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", value)
}
