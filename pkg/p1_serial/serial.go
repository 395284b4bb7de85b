package p1_serial

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/goburrow/serial"
)

type SerialConfig struct {
	Device   string
	BaudRate int
}

// LineReader delivers newline-delimited text read from the meter's serial port.
type LineReader struct {
	cfg  SerialConfig
	open func(cfg SerialConfig) (io.ReadCloser, error)

	mu   sync.Mutex
	port io.ReadCloser
}

func NewLineReader(cfg SerialConfig) *LineReader {
	return &LineReader{
		cfg:  cfg,
		open: openSerialPort,
	}
}

// NewLineReaderFrom reads lines from an already opened stream.
func NewLineReaderFrom(r io.ReadCloser) *LineReader {
	return &LineReader{
		open: func(SerialConfig) (io.ReadCloser, error) {
			return r, nil
		},
	}
}

func openSerialPort(cfg SerialConfig) (io.ReadCloser, error) {
	return serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
	})
}

func (lr *LineReader) Open() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.port != nil {
		return nil
	}
	port, err := lr.open(lr.cfg)
	if err != nil {
		return err
	}
	lr.port = port
	return nil
}

// Run calls onLine for every line until ctx is cancelled or the stream ends.
// Cancellation is checked between lines; Close unblocks a pending read.
// Lines longer than MaxLineLength are cut to MaxLineLength+1 bytes and the
// rest of the line is discarded.
func (lr *LineReader) Run(ctx context.Context, onLine func(line string)) error {
	lr.mu.Lock()
	port := lr.port
	lr.mu.Unlock()
	if port == nil {
		return errors.New("serial port not open")
	}

	reader := bufio.NewReader(port)
	line := make([]byte, 0, 256)
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(line) <= MaxLineLength {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || len(line) > 0 {
			onLine(trimLine(line))
		}
		line = line[:0]
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func trimLine(line []byte) string {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength+1]
	}
	return string(line)
}

func (lr *LineReader) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.port == nil {
		return nil
	}
	err := lr.port.Close()
	lr.port = nil
	return err
}
