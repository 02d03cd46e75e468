package ipc

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnixSocketTransport_ListenAndConnect(t *testing.T) {
	dir := t.TempDir()
	transport := &UnixSocketTransport{Path: dir + "/test.sock"}
	ln, info, err := transport.Listen()
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "socket", info.TransportType)
	assert.Equal(t, transport.Path, info.Address)

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		conn.Write([]byte("hello\n"))
		conn.Close()
	}()

	client, err := net.DialTimeout("unix", transport.Path, time.Second)
	require.NoError(t, err)
	defer client.Close()

	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
}

func TestTCPLoopbackTransport_HandshakeRequired(t *testing.T) {
	transport, err := NewTCPLoopbackTransport("")
	require.NoError(t, err)
	ln, info, err := transport.Listen()
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("post-handshake\n"))
	}()

	conn, err := DialTCPLoopback(info.Address, info.Port, info.HandshakeKey)
	require.NoError(t, err)
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "post-handshake\n", line)
}

func TestTCPLoopbackTransport_RejectsBadToken(t *testing.T) {
	transport, err := NewTCPLoopbackTransport("")
	require.NoError(t, err)
	ln, info, err := transport.Listen()
	require.NoError(t, err)
	defer ln.Close()

	_, err = DialTCPLoopback(info.Address, info.Port, "wrong-token")
	assert.Error(t, err)
}
