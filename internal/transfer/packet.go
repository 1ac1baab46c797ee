// Package transfer implements the TFTP service that feeds firmware images
// and similar artifacts to UUTs over the test network, with progress
// reporting for anything on the rig that wants to watch a download.
package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// TFTP opcodes.
const (
	opRRQ   uint16 = 1
	opWRQ   uint16 = 2
	opDATA  uint16 = 3
	opACK   uint16 = 4
	opERROR uint16 = 5
	opOACK  uint16 = 6 // RFC 2347/2348 option acknowledgment
)

// TFTP error codes.
const (
	errUndefined  uint16 = 0
	errNotFound   uint16 = 1
	errAccess     uint16 = 2
	errNoSpace    uint16 = 3
	errIllegal    uint16 = 4
	errUnknownTID uint16 = 5
	errFileExists uint16 = 6
	errNoSuchUser uint16 = 7
)

const (
	// DefaultBlockSize is the RFC 1350 block size.
	DefaultBlockSize = 512
	// MinBlockSize is the smallest negotiable block size.
	MinBlockSize = 8
	// MaxBlockSize fits in an Ethernet MTU of 1500 (20 IP + 8 UDP + 4 TFTP).
	MaxBlockSize = 1468
)

// request is a parsed RRQ or WRQ:
// <2B opcode> <filename> 0 <mode> 0 [opt 0 val 0]...
type request struct {
	op       uint16
	filename string
	mode     string
	options  map[string]string
}

func parseRequest(data []byte) (request, error) {
	if len(data) < 4 {
		return request{}, errors.New("malformed request")
	}
	req := request{op: binary.BigEndian.Uint16(data[:2])}
	parts := strings.Split(string(data[2:]), "\x00")
	if len(parts) < 2 {
		return request{}, errors.New("malformed request")
	}
	req.filename = parts[0]
	req.mode = strings.ToLower(parts[1])
	req.options = make(map[string]string)
	for i := 2; i+1 < len(parts)-1; i += 2 {
		if k := strings.ToLower(parts[i]); k != "" {
			req.options[k] = parts[i+1]
		}
	}
	return req, nil
}

func errorPacket(code uint16, msg string) []byte {
	pkt := make([]byte, 0, 4+len(msg)+1)
	pkt = binary.BigEndian.AppendUint16(pkt, opERROR)
	pkt = binary.BigEndian.AppendUint16(pkt, code)
	pkt = append(pkt, msg...)
	return append(pkt, 0)
}

func ackPacket(block uint16) []byte {
	pkt := make([]byte, 0, 4)
	pkt = binary.BigEndian.AppendUint16(pkt, opACK)
	return binary.BigEndian.AppendUint16(pkt, block)
}

func dataPacket(block uint16, chunk []byte) []byte {
	pkt := make([]byte, 0, 4+len(chunk))
	pkt = binary.BigEndian.AppendUint16(pkt, opDATA)
	pkt = binary.BigEndian.AppendUint16(pkt, block)
	return append(pkt, chunk...)
}

// oackPacket encodes the accepted options in sorted key order so the wire
// form is deterministic.
func oackPacket(options map[string]string) []byte {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pkt := make([]byte, 0, 2)
	pkt = binary.BigEndian.AppendUint16(pkt, opOACK)
	for _, k := range keys {
		pkt = append(pkt, k...)
		pkt = append(pkt, 0)
		pkt = append(pkt, options[k]...)
		pkt = append(pkt, 0)
	}
	return pkt
}

func isAck(pkt []byte, block uint16) bool {
	return len(pkt) >= 4 &&
		binary.BigEndian.Uint16(pkt[:2]) == opACK &&
		binary.BigEndian.Uint16(pkt[2:4]) == block
}

// negotiate filters the client's option requests down to the accepted set.
// fileSize is only consulted for tsize on read requests; pass a negative
// value when unknown.
func negotiate(options map[string]string, fileSize int64) map[string]string {
	accepted := make(map[string]string)
	if v, ok := options["blksize"]; ok {
		if req, err := strconv.Atoi(v); err == nil {
			accepted["blksize"] = strconv.Itoa(clampBlockSize(req))
		}
	}
	if v, ok := options["timeout"]; ok {
		if t, err := strconv.Atoi(v); err == nil {
			if t < 1 {
				t = 1
			} else if t > 255 {
				t = 255
			}
			accepted["timeout"] = strconv.Itoa(t)
		}
	}
	if _, ok := options["tsize"]; ok && fileSize >= 0 {
		accepted["tsize"] = fmt.Sprintf("%d", fileSize)
	}
	return accepted
}

func clampBlockSize(n int) int {
	if n < MinBlockSize {
		return MinBlockSize
	}
	if n > MaxBlockSize {
		return MaxBlockSize
	}
	return n
}

// safePath resolves a requested name inside root, rejecting traversal and
// absolute paths. root must be absolute.
func safePath(root, name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	p := filepath.Clean(filepath.Join(root, name))
	if p != root && !strings.HasPrefix(p, root+string(os.PathSeparator)) {
		return "", false
	}
	return p, true
}
