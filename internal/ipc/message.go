// Package ipc implements the control-plane transport: length-prefixed JSON
// messages over a unix socket, a method registry on the server side and a
// synchronous client.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the little-endian length prefix.
const HeaderSize = 4

// DefaultMaxMessageSize bounds a single message body.
const DefaultMaxMessageSize = 1 << 20

// ErrMessageTooLarge is returned for bodies above the configured limit.
var ErrMessageTooLarge = errors.New("message too large")

// Request is one method call.
type Request struct {
	Method string `json:"method"`
	Data   Params `json:"data"`
}

// Response is a reply object. Success replies carry "result": "ok", failures
// carry "error".
type Response map[string]any

// OK returns a success reply.
func OK() Response {
	return Response{"result": "ok"}
}

// Fail returns an error reply.
func Fail(msg string) Response {
	return Response{"error": msg}
}

// Err returns the error message of a failure reply, "" for success.
func (r Response) Err() string {
	if msg, ok := r["error"].(string); ok {
		return msg
	}
	return ""
}

// Bool returns a boolean reply field.
func (r Response) Bool(key string) (bool, bool) {
	v, ok := r[key].(bool)
	return v, ok
}

// WriteUint32 writes a uint32 in little-endian format.
func WriteUint32(buf []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(buf[offset:], v)
}

// ReadUint32 reads a uint32 in little-endian format.
func ReadUint32(buf []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(buf[offset:])
}

// WriteMessage encodes v as JSON and writes it with its length prefix.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	buf := make([]byte, HeaderSize+len(body))
	WriteUint32(buf, 0, uint32(len(body)))
	copy(buf[HeaderSize:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed body. A limit of 0 means
// DefaultMaxMessageSize.
func ReadMessage(r io.Reader, limit uint32) ([]byte, error) {
	if limit == 0 {
		limit = DefaultMaxMessageSize
	}
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := ReadUint32(header[:], 0)
	if n > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, n, limit)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return body, nil
}
