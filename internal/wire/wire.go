// Package wire provides protobuf message framing for the binwatch tap stream.
//
// Each broadcast message travels as a google.protobuf.Struct, length-delimited
// using protobuf's standard varint encoding. Any protobuf runtime can consume
// the stream without a binwatch-specific schema.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/binwatch/config"
	"github.com/xtxerr/binwatch/internal/event"
)

// Reader reads length-delimited messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	mu      sync.Mutex
	maxSize int64
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), maxSize: config.DefaultMaxMessageSize}
}

// ReadStruct reads the next frame.
// Returns an error if the frame exceeds the maximum message size.
func (r *Reader) ReadStruct() (*structpb.Struct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: r.maxSize,
	}
	if err := opts.UnmarshalFrom(r.r, s); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return s, nil
}

// Read reads and decodes the next message.
func (r *Reader) Read() (event.Message, error) {
	s, err := r.ReadStruct()
	if err != nil {
		return event.Message{}, err
	}
	return Decode(s)
}

// Writer writes length-delimited messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg and writes it with length prefix.
func (w *Writer) Write(msg event.Message) error {
	s, err := Encode(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, s); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Conn combines Reader and Writer for bidirectional communication.
type Conn struct {
	*Reader
	*Writer
}

// NewConn creates a Conn from an io.ReadWriter (e.g., net.Conn).
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		Reader: NewReader(rw),
		Writer: NewWriter(rw),
	}
}

// =============================================================================
// Message Conversion
// =============================================================================

// Encode converts a message to a Struct with the same field names as its
// JSON form.
func Encode(msg event.Message) (*structpb.Struct, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// Decode converts a Struct produced by Encode back to a message.
func Decode(s *structpb.Struct) (event.Message, error) {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return event.Message{}, fmt.Errorf("decode message: %w", err)
	}
	var msg event.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return event.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
