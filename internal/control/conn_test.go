package control

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon accepts one control connection and hands it to handle.
func fakeDaemon(t *testing.T, handle func(conn net.Conn, r *bufio.Reader)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, bufio.NewReader(conn))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func pipeConn(t *testing.T, opts ...Option) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := NewConn(client, opts...)
	t.Cleanup(func() {
		_ = c.Close()
		_ = server.Close()
	})
	return c, server
}

func TestDial_InvalidArguments(t *testing.T) {
	ctx := context.Background()

	_, err := Dial(ctx, "", 9451)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Dial(ctx, "127.0.0.1", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Dial(ctx, "127.0.0.1", 70000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "127.0.0.1", port, WithDialTimeout(time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial control port")
}

func TestConn_CommandRoundTrip(t *testing.T) {
	got := make(chan string, 1)
	host, port := fakeDaemon(t, func(conn net.Conn, r *bufio.Reader) {
		line, _ := r.ReadString('\n')
		got <- line
		_, _ = conn.Write([]byte("250-version=0.4.8.12\r\n250 OK\r\n"))
	})

	ctx := context.Background()
	c, err := Dial(ctx, host, port)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, StateConnected, c.State())

	require.NoError(t, c.Write(ctx, "GETINFO version"))
	assert.Equal(t, "GETINFO version\r\n", <-got)

	resp := c.Read(ctx)
	assert.True(t, resp.Success())
	assert.Equal(t, []string{"version=0.4.8.12", "OK"}, resp.Lines)
}

func TestConn_WriteDoesNotDoubleTerminator(t *testing.T) {
	c, server := pipeConn(t)
	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(server).ReadString('\n')
		got <- line
	}()

	require.NoError(t, c.Write(context.Background(), "SIGNAL NEWNYM\r\n"))
	assert.Equal(t, "SIGNAL NEWNYM\r\n", <-got)
}

func TestConn_WriteErrors(t *testing.T) {
	c, _ := pipeConn(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Write(ctx, ""), ErrInvalidArgument)
	assert.ErrorIs(t, c.Write(ctx, "GETINFO €"), ErrWrite)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Write(ctx, "GETINFO version"), ErrClosed)
}

func TestConn_WriteAfterPeerClosed(t *testing.T) {
	c, server := pipeConn(t)
	require.NoError(t, server.Close())

	assert.ErrorIs(t, c.Write(context.Background(), "GETINFO version"), ErrWrite)
}

func TestConn_ReadTimeout(t *testing.T) {
	c, _ := pipeConn(t, WithReadTimeout(50*time.Millisecond))

	start := time.Now()
	resp := c.Read(context.Background())
	assert.Equal(t, StatusUnknown, resp.Code)
	assert.Equal(t, []string{""}, resp.Lines)
	assert.ErrorIs(t, resp.Err, os.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConn_ReadTimeoutMidBlock(t *testing.T) {
	c, server := pipeConn(t, WithReadTimeout(50*time.Millisecond))
	go func() {
		_, _ = server.Write([]byte("250-foo\r\n"))
	}()

	resp := c.Read(context.Background())
	assert.Equal(t, StatusUnknown, resp.Code)
	assert.Error(t, resp.Err)
}

func TestConn_ReadContextCancel(t *testing.T) {
	c, _ := pipeConn(t, WithReadTimeout(10*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	resp := c.Read(ctx)
	assert.Equal(t, StatusUnknown, resp.Code)
	assert.ErrorIs(t, resp.Err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConn_ReadAfterClose(t *testing.T) {
	c, _ := pipeConn(t)
	require.NoError(t, c.Close())

	resp := c.Read(context.Background())
	assert.Equal(t, StatusUnknown, resp.Code)
	assert.ErrorIs(t, resp.Err, ErrClosed)
}

func TestConn_Authenticate(t *testing.T) {
	tests := []struct {
		name     string
		password string
		reply    string
		wantOK   bool
		wantLine string
	}{
		{
			name:     "accepted",
			password: "s3cret",
			reply:    "250 OK\r\n",
			wantOK:   true,
			wantLine: "AUTHENTICATE \"s3cret\"\r\n",
		},
		{
			name:     "rejected",
			password: "wrong",
			reply:    "515 Authentication failed: Password did not match\r\n",
			wantOK:   false,
			wantLine: "AUTHENTICATE \"wrong\"\r\n",
		},
		{
			name:     "quotes escaped",
			password: `a"b\c`,
			reply:    "250 OK\r\n",
			wantOK:   true,
			wantLine: "AUTHENTICATE \"a\\\"b\\\\c\"\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, server := pipeConn(t)
			got := make(chan string, 1)
			go func() {
				line, _ := bufio.NewReader(server).ReadString('\n')
				got <- line
				_, _ = server.Write([]byte(tt.reply))
			}()

			ok := c.Authenticate(context.Background(), tt.password)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLine, <-got)
			if tt.wantOK {
				assert.Equal(t, StateAuthenticated, c.State())
			} else {
				assert.Equal(t, StateConnected, c.State())
			}
		})
	}
}

func TestConn_AuthenticateNoReply(t *testing.T) {
	c, server := pipeConn(t, WithReadTimeout(50*time.Millisecond))
	go func() {
		_, _ = bufio.NewReader(server).ReadString('\n')
	}()

	assert.False(t, c.Authenticate(context.Background(), "x"))
}

func TestConn_Do(t *testing.T) {
	c, server := pipeConn(t)
	go func() {
		r := bufio.NewReader(server)
		_, _ = r.ReadString('\n')
		_, _ = server.Write([]byte("552 Unrecognized key \"nope\"\r\n"))
	}()

	resp, err := c.Do(context.Background(), "GETINFO nope")
	require.NoError(t, err)
	assert.Equal(t, StatusUnrecognizedEntity, resp.Code)
	assert.False(t, resp.Success())
}

func TestConn_CloseIdempotent(t *testing.T) {
	c, _ := pipeConn(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `""`, Quote(""))
	assert.Equal(t, `"plain"`, Quote("plain"))
	assert.Equal(t, `"a\"b"`, Quote(`a"b`))
	assert.Equal(t, `"line\r\nbreak"`, Quote("line\r\nbreak"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "AUTHENTICATE <redacted>", redact("AUTHENTICATE \"pw\"\r\n"))
	assert.Equal(t, "SETCONF <redacted>", redact("SETCONF HashedControlPassword=16:ABC"))
	assert.Equal(t, "GETINFO version", redact("GETINFO version\r\n"))
	assert.False(t, strings.Contains(redact("authenticate secret"), "secret"))
}
