package prober

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesCheckPassesWhenAllExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marker")
	require.NoError(t, os.WriteFile(path, []byte("ok"), 0o644))

	check := &FilesCheck{Paths: []string{path}}
	assert.NoError(t, check.Run(context.Background()))
}

func TestFilesCheckFailsWhenMissing(t *testing.T) {
	check := &FilesCheck{Paths: []string{"/does/not/exist/marker"}}
	assert.Error(t, check.Run(context.Background()))
}

func TestProcessesCheckRequiresExitZero(t *testing.T) {
	ok := &ProcessesCheck{Commands: [][]string{{"true"}}}
	assert.NoError(t, ok.Run(context.Background()))

	bad := &ProcessesCheck{Commands: [][]string{{"false"}}}
	assert.Error(t, bad.Run(context.Background()))
}

func TestEndpointsCheckConnectsAndCaches(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 64)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					c.Write(buf[:n])
				}
			}(conn)
		}
	}()

	dialCount := 0
	check := NewEndpointsCheck([]string{ln.Addr().String()}, func(ctx context.Context, addr string) (net.Conn, error) {
		dialCount++
		return net.Dial("tcp", addr)
	})
	defer check.Close()

	require.NoError(t, check.Run(context.Background()))
	require.NoError(t, check.Run(context.Background()))
	assert.Equal(t, 1, dialCount, "second run must reuse the cached connection")
}

func TestEndpointsCheckFailsOnUnreachableAddress(t *testing.T) {
	check := NewEndpointsCheck([]string{"127.0.0.1:1"}, func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	})
	defer check.Close()

	assert.Error(t, check.Run(context.Background()))
}
