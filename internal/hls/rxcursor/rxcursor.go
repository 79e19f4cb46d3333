// Package rxcursor bridges the pipeline's push-based channel to a
// pull-based read/seek interface, so a streaming decoder can consume a
// buffer that a background goroutine keeps appending to.
package rxcursor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Rrogntudju/odieux/internal/hls/pipeline"
)

// ErrEmptyStream is returned by New when the channel closes before a single
// message arrives (an empty media playlist, most likely).
var ErrEmptyStream = errors.New("rxcursor: producer closed before any message")

// ErrInvalidSeek is returned when a seek computes a negative position.
var ErrInvalidSeek = errors.New("rxcursor: seek would move to a negative position")

// defaultThrottleReserve is the unread-ahead bound throttled cursors default
// to when no explicit reserve is configured.
const defaultThrottleReserve = 1_024_000

// Cursor implements io.Reader and io.Seeker over a growing buffer fed by a
// pipeline.Message channel. The buffer, read position, and bookkeeping
// flags are all guarded by one mutex; lock hold times are one append or one
// slice copy.
type Cursor struct {
	mu              sync.Mutex
	buf             []byte
	pos             int64
	done            bool
	err             error
	throttled       bool
	throttleReserve int64
	downloadEnabled bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New blocks until the first message arrives on ch and returns a Cursor
// seeded with it, or the message's error if the first message was itself a
// terminal error.
func New(ch <-chan pipeline.Message) (*Cursor, error) {
	return newCursor(ch, false, 0)
}

// NewThrottled is like New but bounds unread-ahead to reserveBytes (the
// producer-drain loop only receives from ch while buffer_len - pos stays
// under the reserve, checked once per second). reserveBytes <= 0 uses the
// default 1 MB reserve.
func NewThrottled(ch <-chan pipeline.Message, reserveBytes int64) (*Cursor, error) {
	if reserveBytes <= 0 {
		reserveBytes = defaultThrottleReserve
	}
	return newCursor(ch, true, reserveBytes)
}

func newCursor(ch <-chan pipeline.Message, throttled bool, reserve int64) (*Cursor, error) {
	first, ok := <-ch
	if !ok {
		return nil, ErrEmptyStream
	}
	if first.Err != nil {
		return nil, first.Err
	}

	c := &Cursor{
		buf:             append([]byte(nil), first.Data...),
		throttled:       throttled,
		throttleReserve: reserve,
		stopCh:          make(chan struct{}),
	}
	if throttled {
		c.downloadEnabled = int64(len(c.buf)) < reserve
	}

	if throttled {
		go c.drainThrottled(ch)
	} else {
		go c.drain(ch)
	}
	return c, nil
}

// drain continuously receives from ch and appends to the buffer until ch
// closes, a terminal error arrives, or the cursor is closed.
func (c *Cursor) drain(ch <-chan pipeline.Message) {
	for {
		select {
		case <-c.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				c.mu.Lock()
				c.done = true
				c.mu.Unlock()
				return
			}
			if msg.Err != nil {
				c.mu.Lock()
				c.err = msg.Err
				c.done = true
				c.mu.Unlock()
				return
			}
			c.mu.Lock()
			c.buf = append(c.buf, msg.Data...)
			c.mu.Unlock()
		}
	}
}

// drainThrottled wakes once per second, and only attempts a (non-blocking)
// receive while the download-enabled flag is set.
func (c *Cursor) drainThrottled(ch <-chan pipeline.Message) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			enabled := c.downloadEnabled
			c.mu.Unlock()
			if !enabled {
				continue
			}

			select {
			case msg, ok := <-ch:
				if !ok {
					c.mu.Lock()
					c.done = true
					c.mu.Unlock()
					return
				}
				if msg.Err != nil {
					c.mu.Lock()
					c.err = msg.Err
					c.done = true
					c.mu.Unlock()
					return
				}
				c.mu.Lock()
				c.buf = append(c.buf, msg.Data...)
				c.mu.Unlock()
			default:
			}
		}
	}
}

// Read returns at most len(p) bytes starting at the current position,
// advancing it by the number of bytes returned. It returns (0, nil) when
// the position has caught up to the buffer but the producer is still
// running (the caller is expected to retry), and io.EOF once the producer
// has finished and every byte has been read.
func (c *Cursor) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pos < int64(len(c.buf)) {
		n := copy(p, c.buf[c.pos:])
		c.pos += int64(n)
		if c.throttled {
			remaining := int64(len(c.buf)) - c.pos
			c.downloadEnabled = remaining < c.throttleReserve
		}
		return n, nil
	}

	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	return 0, nil
}

// Seek repositions the cursor. Start sets pos unconditionally, without
// validating it against the current buffer end, so a caller can seek ahead
// of the producer. Current and End are relative to a snapshot of the
// current position and buffer end respectively. A negative result is
// ErrInvalidSeek.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = c.pos + offset
	case io.SeekEnd:
		newPos = int64(len(c.buf)) + offset
	default:
		return 0, fmt.Errorf("rxcursor: invalid whence %d", whence)
	}

	if newPos < 0 {
		return 0, ErrInvalidSeek
	}

	c.pos = newPos
	return newPos, nil
}

// Close sets the stop flag; the background drain goroutine exits at its
// next wake (immediately for the unthrottled cursor, within ~1s for the
// throttled one).
func (c *Cursor) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
