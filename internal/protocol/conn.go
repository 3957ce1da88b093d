package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const maxLineSize = 1 << 20

// Conn - newline-delimited envelope stream. Writes are serialized, reads must come from a single goroutine.
type Conn struct {
	rwc     io.ReadWriteCloser
	scanner *bufio.Scanner

	writeMu sync.Mutex
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	return &Conn{
		rwc:     rwc,
		scanner: scanner,
	}
}

// Read - next envelope. A line that is not a valid envelope yields ErrMalformedEnvelope and the stream
// stays usable; io.EOF or a transport error means the stream is finished.
func (that *Conn) Read() (*Envelope, error) {
	for that.scanner.Scan() {
		line := bytes.TrimSpace(that.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var envelope Envelope
		if err := json.Unmarshal(line, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
		}

		if envelope.Type == "" {
			return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
		}

		return &envelope, nil
	}

	if err := that.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read envelope: %w", err)
	}

	return nil, io.EOF
}

// Write - encodes envelope as a single line.
func (that *Conn) Write(envelope *Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	data = append(data, '\n')

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if _, err = that.rwc.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}

	return nil
}

func (that *Conn) Close() error {
	return that.rwc.Close()
}
