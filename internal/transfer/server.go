package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"testrig/pkg/logging"
)

// Options configures the transfer server.
type Options struct {
	// Listen is the UDP address for the control socket, e.g. ":69".
	Listen string
	// Root is the directory served to clients. Created if missing.
	Root string
	// Timeout is the per-block retransmit timeout.
	Timeout time.Duration
	// Retries is the number of retransmits before a transfer is given up.
	Retries int
	// BlockSize caps the negotiated block size and is used when the client
	// does not negotiate.
	BlockSize int
}

func (o Options) withDefaults() Options {
	if o.Listen == "" {
		o.Listen = ":69"
	}
	if o.Root == "" {
		o.Root = "."
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 5
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	o.BlockSize = clampBlockSize(o.BlockSize)
	return o
}

// Server is a TFTP server that reports transfer status to subscribers. Each
// accepted request is handled on its own goroutine with its own transfer
// socket, per RFC 1350's transfer-id scheme.
type Server struct {
	opts     Options
	root     string
	notifier *Notifier

	sentBytes atomic.Int64

	addr  atomic.Value // net.Addr of the control socket once listening
	ready chan struct{}
}

// NewServer creates a server. The served root is created if missing.
func NewServer(opts Options) (*Server, error) {
	opts = opts.withDefaults()
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving transfer root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating transfer root: %w", err)
	}
	return &Server{
		opts:     opts,
		root:     root,
		notifier: newNotifier(),
		ready:    make(chan struct{}),
	}, nil
}

// Notifier exposes the subscription hub for transfer status.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// SentBytes is the total payload volume sent since startup.
func (s *Server) SentBytes() int64 {
	return s.sentBytes.Load()
}

// Root is the absolute path of the served directory.
func (s *Server) Root() string {
	return s.root
}

// Addr returns the control socket address, or nil before Serve has bound it.
func (s *Server) Addr() net.Addr {
	addr, _ := s.addr.Load().(net.Addr)
	return addr
}

// Ready is closed once the control socket is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve accepts requests until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("binding control socket: %w", err)
	}
	defer conn.Close()
	s.addr.Store(conn.LocalAddr())
	close(s.ready)
	logging.Info("Transfer", "TFTP listening on %s (root=%s)", conn.LocalAddr(), s.root)

	buf := make([]byte, 2048)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return fmt.Errorf("reading control socket: %w", err)
		}
		if n < 4 {
			continue
		}

		req, err := parseRequest(buf[:n])
		if err != nil {
			logging.Warn("Transfer", "illegal TFTP operation from %s: %v", addr, err)
			s.sendErrorFromNewSocket(addr, errIllegal, "Illegal TFTP operation")
			continue
		}
		logging.Info("Transfer", "%s %s from %s opts=%v", opName(req.op), req.filename, addr, req.options)

		switch req.op {
		case opRRQ:
			go s.handleRead(addr, req)
		case opWRQ:
			go s.handleWrite(addr, req)
		default:
			s.sendErrorFromNewSocket(addr, errIllegal, "Illegal TFTP operation")
		}
	}
}

func opName(op uint16) string {
	switch op {
	case opRRQ:
		return "RRQ"
	case opWRQ:
		return "WRQ"
	default:
		return fmt.Sprintf("op %d", op)
	}
}

// handleRead serves one file to one client.
func (s *Server) handleRead(client net.Addr, req request) {
	transferID := uuid.NewString()
	s.notifier.emitNewTransfer(hostOf(client), req.filename, transferID)

	if req.mode != "octet" {
		logging.Info("Transfer", "RRQ rejected: mode %s not supported", req.mode)
		s.notifier.emitEnded(transferID, fmt.Errorf("mode %s not supported", req.mode))
		return
	}
	path, ok := safePath(s.root, req.filename)
	var stat os.FileInfo
	if ok {
		var err error
		stat, err = os.Stat(path)
		ok = err == nil && stat.Mode().IsRegular()
	}
	if !ok {
		logging.Info("Transfer", "RRQ file not found: %s", req.filename)
		s.notifier.emitEnded(transferID, errors.New("file not found"))
		s.sendErrorFromNewSocket(client, errNotFound, "File not found")
		return
	}

	fileSize := stat.Size()
	blockSize := s.opts.BlockSize
	accepted := negotiate(req.options, fileSize)

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logging.Error("Transfer", err, "RRQ: cannot open transfer socket")
		s.notifier.emitEnded(transferID, err)
		return
	}
	defer conn.Close()

	if len(accepted) > 0 {
		if v, found := accepted["blksize"]; found {
			fmt.Sscanf(v, "%d", &blockSize)
		}
		// If the client never acknowledges the OACK, fall back to DATA(1).
		if !s.sendOACK(conn, client, accepted) {
			logging.Info("Transfer", "RRQ: no ACK to OACK from %s; falling back to DATA(1)", client)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		s.notifier.emitEnded(transferID, err)
		s.sendError(conn, client, errAccess, "Access violation")
		return
	}
	defer f.Close()

	chunk := make([]byte, blockSize)
	block := uint16(1)
	for {
		n, err := io.ReadFull(f, chunk)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			s.notifier.emitEnded(transferID, err)
			return
		}

		if !s.sendBlock(conn, client, block, chunk[:n]) {
			logging.Info("Transfer", "RRQ: retries exhausted to %s (block %d)", client, block)
			s.notifier.emitEnded(transferID, errors.New("retries exhausted"))
			return
		}
		s.notifier.emitProgress(transferID, int64(block)*int64(blockSize), fileSize)

		if n < blockSize {
			s.notifier.emitEnded(transferID, nil)
			return
		}
		block++
		if block == 0 {
			// Block numbers wrap around 16 bits; zero is reserved for ACK(0).
			block = 1
		}
	}
}

// sendBlock transmits one DATA packet and waits for its ACK, retransmitting
// up to the configured retry budget.
func (s *Server) sendBlock(conn net.PacketConn, client net.Addr, block uint16, chunk []byte) bool {
	buf := make([]byte, 4+64)
	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		if _, err := conn.WriteTo(dataPacket(block, chunk), client); err != nil {
			return false
		}
		s.sentBytes.Add(int64(len(chunk)))

		_ = conn.SetReadDeadline(time.Now().Add(s.opts.Timeout))
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		if src.String() != client.String() {
			s.sendError(conn, src, errUnknownTID, "Unknown transfer ID")
			continue
		}
		if isAck(buf[:n], block) {
			return true
		}
	}
	return false
}

// handleWrite receives one file from one client.
func (s *Server) handleWrite(client net.Addr, req request) {
	if req.mode != "octet" {
		logging.Info("Transfer", "WRQ rejected: mode %s not supported", req.mode)
		return
	}
	path, ok := safePath(s.root, req.filename)
	if !ok {
		s.sendErrorFromNewSocket(client, errAccess, "Access violation")
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.sendErrorFromNewSocket(client, errNoSpace, "Cannot create directory")
		return
	}

	blockSize := s.opts.BlockSize
	accepted := negotiate(req.options, -1)

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logging.Error("Transfer", err, "WRQ: cannot open transfer socket")
		return
	}
	defer conn.Close()

	if len(accepted) > 0 {
		if v, found := accepted["blksize"]; found {
			fmt.Sscanf(v, "%d", &blockSize)
		}
		if !s.sendOACK(conn, client, accepted) {
			logging.Info("Transfer", "WRQ: no DATA after OACK from %s", client)
			return
		}
	} else {
		// ACK block 0 starts an option-less WRQ.
		if _, err := conn.WriteTo(ackPacket(0), client); err != nil {
			return
		}
	}

	f, err := os.Create(path)
	if err != nil {
		s.sendError(conn, client, errAccess, "Access violation")
		return
	}
	defer f.Close()

	expected := uint16(1)
	buf := make([]byte, blockSize+4+64)
	for {
		received := false
		for attempt := 0; attempt < s.opts.Retries; attempt++ {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.Timeout))
			n, src, err := conn.ReadFrom(buf)
			if err != nil {
				continue
			}
			if src.String() != client.String() {
				s.sendError(conn, src, errUnknownTID, "Unknown transfer ID")
				continue
			}
			if n < 4 || buf[1] != byte(opDATA) {
				continue
			}
			block := uint16(buf[2])<<8 | uint16(buf[3])
			data := buf[4:n]
			if block != expected {
				// Duplicate or out of order; re-ACK the last received block.
				_, _ = conn.WriteTo(ackPacket(expected-1), client)
				continue
			}
			if _, err := f.Write(data); err != nil {
				s.sendError(conn, client, errNoSpace, "Write failed")
				return
			}
			_, _ = conn.WriteTo(ackPacket(block), client)
			if len(data) < blockSize {
				return // last block
			}
			expected++
			if expected == 0 {
				expected = 1
			}
			received = true
			break
		}
		if !received {
			logging.Info("Transfer", "WRQ: retries exhausted from %s (expect block %d)", client, expected)
			return
		}
	}
}

// sendOACK transmits the option acknowledgment and waits for the client's
// ACK(0).
func (s *Server) sendOACK(conn net.PacketConn, client net.Addr, accepted map[string]string) bool {
	pkt := oackPacket(accepted)
	buf := make([]byte, 2048)
	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		if _, err := conn.WriteTo(pkt, client); err != nil {
			return false
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.Timeout))
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		if src.String() != client.String() {
			s.sendError(conn, src, errUnknownTID, "Unknown transfer ID")
			continue
		}
		if isAck(buf[:n], 0) {
			return true
		}
	}
	return false
}

func (s *Server) sendError(conn net.PacketConn, addr net.Addr, code uint16, msg string) {
	_, _ = conn.WriteTo(errorPacket(code, msg), addr)
}

// sendErrorFromNewSocket answers a request on a fresh transfer id, per RFC,
// when no transfer socket exists yet.
func (s *Server) sendErrorFromNewSocket(addr net.Addr, code uint16, msg string) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return
	}
	defer conn.Close()
	s.sendError(conn, addr, code, msg)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
