package tsunami

import (
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndTransfer(t *testing.T) {
	root := t.TempDir()
	content := make([]byte, 3000) // 3 blocks at BlockSize=1024
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src.bin"), content, 0o644))

	secret := []byte("integration-secret")
	params := NewDefaultParams()
	params.BlockSize = 1024
	params.TargetRate = 50_000_000

	srv := NewServer(root, secret, params)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go srv.Serve(ln) //nolint:errcheck

	client, err := Open(ln.Addr().String(), append([]byte(nil), secret...))
	require.NoError(t, err)
	defer client.Close()

	outPath := filepath.Join(t.TempDir(), "out.bin")
	done := make(chan error, 1)
	go func() { done <- client.RequestFile("src.bin", outPath, params) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("transfer did not complete in time")
	}

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestEndToEndAuthFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "src.bin"), []byte("data"), 0o644))

	srv := NewServer(root, []byte("server-secret"), NewDefaultParams())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go srv.Serve(ln) //nolint:errcheck

	_, err = Open(ln.Addr().String(), []byte("wrong-secret"))
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestEndToEndFileNotFound(t *testing.T) {
	root := t.TempDir()
	secret := []byte("integration-secret")

	srv := NewServer(root, secret, NewDefaultParams())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go srv.Serve(ln) //nolint:errcheck

	client, err := Open(ln.Addr().String(), append([]byte(nil), secret...))
	require.NoError(t, err)
	defer client.Close()

	err = client.RequestFile("missing.bin", filepath.Join(t.TempDir(), "out.bin"), NewDefaultParams())
	assert.ErrorIs(t, err, ErrFileNotFound)
}
