/*
NAME
  sender.go

DESCRIPTION
  sender.go provides the destinations the multiplexed MPEG-TS output of the
  ingest pipeline is written to.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sender provides io.WriteCloser destinations for MPEG-TS output.
package sender

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"

	"github.com/ausocean/vanc/container/mts"
	"github.com/ausocean/vanc/protocol/rtp"
)

// Sender pool buffer settings.
const (
	mtsPoolReadTimeout    = 1 * time.Second
	drainReadTimeout      = 100 * time.Millisecond
	mtsBufferPoolMaxAlloc = 5 << 20 // 5MiB.
	mtsRetryPeriod        = 100 * time.Millisecond
	maxBuffLen            = 50000000
)

// udpDatagramPackets is the number of TS packets per UDP datagram.
const udpDatagramPackets = 7

// minFreeSpace is the disk space a FileSender leaves free.
const minFreeSpace = 50000000 // 50MB.

var ErrShortPacket = errors.New("do not have full MTS packet")

// FileSender writes to a local file, created on the first write.
type FileSender struct {
	file *os.File
	path string
	log  logging.Logger
}

// NewFileSender returns a new FileSender writing to path.
func NewFileSender(l logging.Logger, path string) *FileSender {
	return &FileSender{path: path, log: l}
}

// Write implements io.Writer.
func (s *FileSender) Write(d []byte) (int, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		return 0, fmt.Errorf("could not read system disk space, abandoning write: %w", err)
	}
	availableSpace := stat.Bavail * uint64(stat.Bsize)
	if availableSpace < minFreeSpace {
		return 0, fmt.Errorf("reached limit of disk space with a buffer of %v bytes, abandoning write", minFreeSpace)
	}

	if s.file == nil {
		s.log.Debug("creating output file", "path", s.path)
		f, err := os.Create(s.path)
		if err != nil {
			return 0, fmt.Errorf("could not create output file: %w", err)
		}
		s.file = f
	}
	return s.file.Write(d)
}

// Close implements io.Closer.
func (s *FileSender) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// UDPSender sends TS packets to a UDP address, several packets per datagram.
type UDPSender struct {
	conn net.Conn
	log  logging.Logger
}

// NewUDPSender returns a UDPSender sending to addr.
func NewUDPSender(l logging.Logger, addr string) (*UDPSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", addr, err)
	}
	return &UDPSender{conn: conn, log: l}, nil
}

// Write implements io.Writer. d must hold whole TS packets.
func (s *UDPSender) Write(d []byte) (int, error) {
	if len(d)%mts.PacketSize != 0 {
		return 0, ErrShortPacket
	}
	var n int
	for len(d) != 0 {
		l := min(len(d), udpDatagramPackets*mts.PacketSize)
		_, err := s.conn.Write(d[:l])
		if err != nil {
			return n, fmt.Errorf("could not send datagram: %w", err)
		}
		n += l
		d = d[l:]
	}
	return n, nil
}

// Close implements io.Closer.
func (s *UDPSender) Close() error { return s.conn.Close() }

// RTPSender sends TS packets to a UDP address in RTP packets (RFC 2250).
type RTPSender struct {
	conn    net.Conn
	encoder *rtp.Encoder
	log     logging.Logger
}

// NewRTPSender returns an RTPSender sending to addr.
func NewRTPSender(l logging.Logger, addr string) (*RTPSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", addr, err)
	}
	return &RTPSender{conn: conn, encoder: rtp.NewEncoder(conn), log: l}, nil
}

// Write implements io.Writer. d must hold whole TS packets.
func (s *RTPSender) Write(d []byte) (int, error) {
	if len(d)%mts.PacketSize != 0 {
		return 0, ErrShortPacket
	}
	n, err := s.encoder.Write(d)
	if err != nil {
		return n, fmt.Errorf("could not send RTP packet: %w", err)
	}
	return n, nil
}

// Close sends any buffered packets and closes the connection.
func (s *RTPSender) Close() error {
	err := s.encoder.Flush()
	if err != nil {
		s.log.Warning("could not flush RTP encoder", "error", err.Error())
	}
	return s.conn.Close()
}

// MTSSender implements io.WriteCloser and decouples the MPEG-TS encoder from
// a possibly slow destination. Packets are gathered into clips beginning at a
// PAT, which are written to a pool buffer and sent to dst by an output
// routine. A clip that fails to send is retried.
type MTSSender struct {
	dst  io.WriteCloser
	buf  []byte
	next []byte
	done chan struct{}
	log  logging.Logger
	wg   sync.WaitGroup

	mu      sync.Mutex
	pool    *pool.Buffer // Replaced when a clip is too long for it.
	dropped int
}

// NewMTSSender returns a new MTSSender.
func NewMTSSender(dst io.WriteCloser, log logging.Logger, rb *pool.Buffer) *MTSSender {
	s := &MTSSender{
		dst:  dst,
		log:  log,
		pool: rb,
		done: make(chan struct{}),
	}
	pool.MaxAlloc(mtsBufferPoolMaxAlloc)
	s.wg.Add(1)
	go s.output()
	return s
}

// buffer returns the current pool buffer.
func (s *MTSSender) buffer() *pool.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// nextChunk gets the next clip from rb. A replaced buffer is closed by Write,
// so once its clips are read it returns io.EOF and reading moves on to the
// current buffer.
func (s *MTSSender) nextChunk(rb *pool.Buffer, timeout time.Duration) (*pool.Chunk, *pool.Buffer, error) {
	for {
		chunk, err := rb.Next(timeout)
		if err != io.EOF {
			return chunk, rb, err
		}
		cur := s.buffer()
		if cur == rb {
			return nil, rb, err
		}
		rb = cur
	}
}

// output starts an MTSSender's data handling routine.
func (s *MTSSender) output() {
	defer s.wg.Done()
	var chunk *pool.Chunk
	rb := s.buffer()
	for {
		select {
		case <-s.done:
			s.drain(rb, chunk)
			s.log.Info("terminating sender output routine")
			return
		default:
			if chunk == nil {
				var err error
				chunk, rb, err = s.nextChunk(rb, mtsPoolReadTimeout)
				switch err {
				case nil:
				case pool.ErrTimeout:
					s.log.Debug("pool buffer read timeout")
					continue
				default:
					s.log.Error("unexpected error", "error", err.Error())
					continue
				}
			}
			_, err := s.dst.Write(chunk.Bytes())
			if err != nil {
				s.log.Warning("failed write, retrying clip", "error", err.Error())
				select {
				case <-s.done:
				case <-time.After(mtsRetryPeriod):
				}
				continue
			}
			chunk.Close()
			chunk = nil
		}
	}
}

// drain sends chunk, if not nil, and the clips remaining in the pool. Clips
// failing to send are dropped.
func (s *MTSSender) drain(rb *pool.Buffer, chunk *pool.Chunk) {
	for {
		if chunk == nil {
			var err error
			chunk, rb, err = s.nextChunk(rb, drainReadTimeout)
			if err != nil {
				return
			}
		}
		_, err := s.dst.Write(chunk.Bytes())
		if err != nil {
			s.log.Warning("failed write while draining, dropping clip", "error", err.Error())
		}
		chunk.Close()
		chunk = nil
	}
}

// Write implements io.Writer. d must hold a single TS packet.
func (s *MTSSender) Write(d []byte) (int, error) {
	if len(d) < mts.PacketSize {
		return 0, ErrShortPacket
	}
	if s.next != nil {
		s.buf = append(s.buf, s.next...)
	}
	s.next = append(s.next[:0], d...)

	pid, err := mts.PID(s.next)
	if err != nil {
		return 0, fmt.Errorf("could not get PID: %w", err)
	}
	if pid != mts.PatPid || len(s.buf) == 0 {
		return len(d), nil
	}

	rb := s.buffer()
	n, err := rb.Write(s.buf)
	if err == nil {
		rb.Flush()
	} else {
		s.log.Warning("pool buffer write error", "error", err.Error(), "n", n, "writeSize", len(s.buf))
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		if err == pool.ErrTooLong {
			s.resize(len(s.buf) * 2)
		}
	}
	s.buf = s.buf[:0]
	return len(d), nil
}

// resize replaces the pool buffer with one of element size size. The old
// buffer is closed so its remaining clips are still sent.
func (s *MTSSender) resize(size int) {
	s.mu.Lock()
	old := s.pool
	s.pool = pool.NewBuffer(maxBuffLen/size, size, 5*time.Second)
	s.mu.Unlock()
	old.Close()
	s.log.Info("adjusted MTS pool buffer element size", "new size", size, "num elements", maxBuffLen/size)
}

// Dropped returns the number of clips that could not be buffered.
func (s *MTSSender) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes the clip in progress, stops the output routine and closes
// the destination.
func (s *MTSSender) Close() error {
	s.log.Debug("closing sender output routine")
	if s.next != nil {
		s.buf = append(s.buf, s.next...)
		s.next = nil
	}
	if len(s.buf) != 0 {
		rb := s.buffer()
		if _, err := rb.Write(s.buf); err == nil {
			rb.Flush()
		}
		s.buf = s.buf[:0]
	}
	close(s.done)
	s.wg.Wait()
	s.log.Info("sender output routine closed")
	return s.dst.Close()
}
