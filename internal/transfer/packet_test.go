package transfer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	pkt := []byte{0, 1}
	pkt = append(pkt, "firmware.bin\x00octet\x00blksize\x001024\x00tsize\x000\x00"...)

	req, err := parseRequest(pkt)
	require.NoError(t, err)
	assert.Equal(t, opRRQ, req.op)
	assert.Equal(t, "firmware.bin", req.filename)
	assert.Equal(t, "octet", req.mode)
	assert.Equal(t, map[string]string{"blksize": "1024", "tsize": "0"}, req.options)
}

func TestParseRequest_ModeIsLowercased(t *testing.T) {
	pkt := append([]byte{0, 2}, "upload.log\x00OCTET\x00"...)
	req, err := parseRequest(pkt)
	require.NoError(t, err)
	assert.Equal(t, opWRQ, req.op)
	assert.Equal(t, "octet", req.mode)
}

func TestParseRequest_Malformed(t *testing.T) {
	_, err := parseRequest([]byte{0, 1})
	assert.Error(t, err)

	_, err = parseRequest(append([]byte{0, 1}, "no-mode"...))
	assert.Error(t, err)
}

func TestPacketBuilders(t *testing.T) {
	assert.Equal(t, []byte{0, 4, 0, 7}, ackPacket(7))
	assert.Equal(t, []byte{0, 3, 0, 1, 'h', 'i'}, dataPacket(1, []byte("hi")))
	assert.Equal(t, []byte{0, 5, 0, 1, 'n', 'o', 0}, errorPacket(errNotFound, "no"))
	assert.Equal(t, append([]byte{0, 6}, "blksize\x001024\x00timeout\x003\x00"...),
		oackPacket(map[string]string{"timeout": "3", "blksize": "1024"}))
}

func TestIsAck(t *testing.T) {
	assert.True(t, isAck(ackPacket(3), 3))
	assert.False(t, isAck(ackPacket(4), 3))
	assert.False(t, isAck(dataPacket(3, nil), 3))
	assert.False(t, isAck([]byte{0, 4}, 0))
}

func TestNegotiate(t *testing.T) {
	accepted := negotiate(map[string]string{
		"blksize": "9000",
		"timeout": "0",
		"tsize":   "0",
	}, 4096)
	assert.Equal(t, map[string]string{
		"blksize": "1468",
		"timeout": "1",
		"tsize":   "4096",
	}, accepted)

	// tsize is not answered when the size is unknown (write requests).
	accepted = negotiate(map[string]string{"tsize": "0"}, -1)
	assert.Empty(t, accepted)

	// Unparseable values are dropped, not errors.
	accepted = negotiate(map[string]string{"blksize": "huge"}, -1)
	assert.Empty(t, accepted)

	assert.Equal(t, map[string]string{"blksize": "8"},
		negotiate(map[string]string{"blksize": "1"}, -1))
	assert.Equal(t, map[string]string{"timeout": "255"},
		negotiate(map[string]string{"timeout": "9999"}, -1))
}

func TestSafePath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "images")

	p, ok := safePath(root, "boot/uImage")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "boot", "uImage"), p)

	_, ok = safePath(root, "../../etc/passwd")
	assert.False(t, ok)

	_, ok = safePath(root, "..\\..\\etc\\passwd")
	assert.False(t, ok)

	p, ok = safePath(root, "a/../b")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "b"), p)
}
