package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		PID:      4242,
		Cmd:      CmdWrite,
		Pathname: "x",
		Flags:    OCreate | OLock,
		Size:     5,
		Content:  []byte("hello"),
		FDClient: 7,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{
		Pathname:    "x",
		Content:     []byte("hello"),
		ContentSize: 5,
		Code:        CodeOK,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestReadRequestShortRead(t *testing.T) {
	// Truncated after the pid field.
	var buf bytes.Buffer
	require.NoError(t, writeInt32(&buf, 1))

	_, err := ReadRequest(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadShort)
}

func TestReadBytesRejectsOversizedField(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, MaxCharacters+1))

	_, err := readBytes(&buf, MaxCharacters)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldTooLarge)
}

func TestEmptyContentRoundTrip(t *testing.T) {
	req := &Request{
		PID:      1,
		Cmd:      CmdOpen,
		Pathname: "new-file",
		Flags:    OCreate,
		Size:     -1,
		Content:  []byte{},
		FDClient: -1,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}
