package socketpair

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPair(t *testing.T) {
	a, b, err := SocketPair()
	require.NoError(t, err)

	_, err = a.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(b, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, a.Close())
	_, err = b.Read(buf)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, b.Close())
}
