package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameBytes caps frame payloads at 1 MiB, matching the
// native-messaging limit for host-bound messages. A corrupt or hostile
// length field can therefore never force unbounded buffering.
const DefaultMaxFrameBytes = 1 << 20

var (
	// ErrFrameTooLarge means a declared or produced payload length
	// exceeds the configured ceiling.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrTruncatedFrame means the stream closed before a full length
	// prefix or payload could be read.
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrMalformedPayload means the payload bytes are not valid JSON
	// or match no known message schema.
	ErrMalformedPayload = errors.New("malformed frame payload")
)

// Codec reads and writes length-prefixed frames on a byte stream: a
// 4-byte little-endian unsigned payload length followed by that many
// UTF-8 JSON bytes. The streams must be raw binary; os.Stdin/os.Stdout
// satisfy this on every platform Go targets.
//
// Any I/O error on either direction is fatal to the channel: once byte
// alignment is lost the stream cannot be trusted, so callers must tear
// the process down rather than retry at frame level.
type Codec struct {
	r        *bufio.Reader
	w        *bufio.Writer
	maxBytes int

	// wmu serializes writers: the read loop replies to pings while the
	// claim loop forwards jobs on the same stream.
	wmu sync.Mutex
}

// NewCodec wraps a reader/writer pair in a Codec with the given payload
// ceiling; maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewCodec(r io.Reader, w io.Writer, maxBytes int) *Codec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Codec{
		r:        bufio.NewReader(r),
		w:        bufio.NewWriter(w),
		maxBytes: maxBytes,
	}
}

// WriteFrame writes one raw payload with its length prefix, flushing
// before returning so a crash after WriteFrame never strands a frame
// in the buffer.
func (c *Codec) WriteFrame(payload []byte) error {
	if len(payload) > c.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until a complete frame arrives and returns its raw
// payload. A clean close before any length byte is io.EOF; a close
// mid-frame is ErrTruncatedFrame.
func (c *Codec) ReadFrame() ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(c.r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream closed inside length prefix", ErrTruncatedFrame)
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if int64(length) > int64(c.maxBytes) {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got fewer than the declared %d bytes", ErrTruncatedFrame, length)
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return payload, nil
}

// Send encodes an outbound message and writes it as one frame.
func (c *Codec) Send(msg Outbound) error {
	payload, err := encodeOutbound(msg)
	if err != nil {
		return err
	}
	return c.WriteFrame(payload)
}

// Receive reads one frame and decodes it into its inbound variant.
func (c *Codec) Receive() (Inbound, error) {
	payload, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	return decodeInbound(payload)
}
