package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultEventType is the envelope type the designer bridge listens for.
const DefaultEventType = "designer.oauth"

// maxEnvelopeSize bounds a single inbound line. Longer lines are discarded.
const maxEnvelopeSize = 1 << 20

const readBufferSize = 64 * 1024

// Envelope wraps a Message with the routing fields of the host messaging
// primitive. Only envelopes of the configured type, targeted at this
// context (or untargeted), are delivered.
type Envelope struct {
	Type   string  `json:"type"`
	Target string  `json:"target,omitempty"`
	Data   Message `json:"data"`
}

// StreamOptions configures a Stream.
type StreamOptions struct {
	// EventType filters inbound envelopes and tags outbound ones.
	// Default: DefaultEventType.
	EventType string

	// Target is this context's id. Inbound envelopes targeted at a different
	// context are skipped. Outbound envelopes are left untargeted.
	Target string

	// Paused defers reading until Start, so handlers can be registered
	// before the first envelope is dispatched.
	Paused bool

	Logger *slog.Logger
}

// Stream is the embedded-UI transport: newline-delimited JSON envelopes over
// a reader/writer pair, typically the stdio of a process spawned by the host.
type Stream struct {
	Registry

	opts   StreamOptions
	logger *slog.Logger

	r io.Reader
	w io.Writer

	writeMu sync.Mutex
	enc     *json.Encoder

	startOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}
	readDone  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewStream starts reading envelopes from r. Messages are written to w.
func NewStream(r io.Reader, w io.Writer, opts StreamOptions) *Stream {
	if opts.EventType == "" {
		opts.EventType = DefaultEventType
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stream{
		opts:     opts,
		logger:   logger.With("transport", "stream"),
		r:        r,
		w:        w,
		enc:      json.NewEncoder(w),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	if !opts.Paused {
		s.Start()
	}
	return s
}

// Start begins reading. It is a no-op after the first call.
func (s *Stream) Start() {
	s.startOnce.Do(func() {
		go s.readLoop()
	})
}

func (s *Stream) readLoop() {
	defer close(s.readDone)
	defer s.shutdown()

	br := bufio.NewReaderSize(s.r, readBufferSize)
	for {
		line, tooLong, err := readLine(br)
		if tooLong {
			s.logger.Warn("oversize envelope", "limit", maxEnvelopeSize, "action", "skip")
		} else if len(line) > 0 {
			s.handleLine(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("stream read failed", "error", err)
			}
			return
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxEnvelopeSize is consumed to its end and reported as tooLong.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxEnvelopeSize+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, rerr
	}
}

func (s *Stream) handleLine(line []byte) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		s.logger.Warn("malformed envelope", "error", err, "action", "skip")
		return
	}
	if env.Type != s.opts.EventType {
		s.logger.Debug("foreign envelope", "type", env.Type, "action", "skip")
		return
	}
	if env.Target != "" && env.Target != s.opts.Target {
		s.logger.Debug("envelope for another context", "target", env.Target, "action", "skip")
		return
	}

	s.Dispatch(env.Data)
}

// Send writes msg as a single envelope line. The write side stays open after
// the reader ends, so results can still be reported; it fails only after Close.
func (s *Stream) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(Envelope{Type: s.opts.EventType, Data: msg}); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// OnMessage registers h for inbound messages.
func (s *Stream) OnMessage(h Handler) func() {
	return s.Registry.OnMessage(h)
}

// Done is closed when the reader ends or the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close stops the stream. If the reader is an io.Closer it is closed once to
// unblock the read loop; later calls return the same error.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if c, ok := s.r.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	s.shutdown()
	return s.closeErr
}

func (s *Stream) shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

var _ Channel = (*Stream)(nil)
