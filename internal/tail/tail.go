package tail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultInterval is the poll interval for new data and for the file to
// appear. Shutdown latency of a tailer is bounded by one interval.
const DefaultInterval = 200 * time.Millisecond

const readChunk = 32 * 1024

// Console serializes line writes from concurrent tailers so lines from
// different services never interleave mid-line in the merged stream.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// WriteLine writes one complete, newline-terminated line atomically.
func (c *Console) WriteLine(line string) {
	c.mu.Lock()
	_, _ = io.WriteString(c.w, line)
	c.mu.Unlock()
}

// Tailer follows one growing log file from its current end, emitting each
// appended line to Out with a fixed "[prefix] " tag. Content present before
// the tailer attaches is never replayed.
type Tailer struct {
	Path     string
	Prefix   string
	Out      *Console
	Interval time.Duration // poll interval; DefaultInterval when zero
}

// Run follows the file until ctx is cancelled. It first waits for the file to
// exist, then seeks to the end and polls for appended data. When rotation
// moves the file aside (a new one appears at the same path) or the file is
// truncated, the tailer reopens and continues from the start of the new
// content. Run only returns a non-nil error when the file exists but cannot
// be opened.
func (t *Tailer) Run(ctx context.Context) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := os.Stat(t.Path); err == nil {
			break
		}
		if !sleepOrDone(ctx, interval) {
			return nil
		}
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return fmt.Errorf("tail %s: %w", t.Path, err)
	}
	defer func() { _ = f.Close() }()
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("tail %s: seek end: %w", t.Path, err)
	}

	tag := "[" + t.Prefix + "] "
	var pending []byte // bytes read but not yet newline-terminated
	buf := make([]byte, readChunk)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := f.Read(buf)
		if n > 0 {
			offset += int64(n)
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				t.emit(tag, pending[:i])
				pending = pending[i+1:]
			}
			continue // drain available data before sleeping again
		}
		if err != nil && err != io.EOF {
			return nil
		}
		if nf := t.reopenIfRotated(f, offset); nf != nil {
			if len(pending) > 0 {
				// The old file ended mid-line; flush what it had.
				t.emit(tag, pending)
				pending = nil
			}
			_ = f.Close()
			f, offset = nf, 0
			continue
		}
		if !sleepOrDone(ctx, interval) {
			return nil
		}
	}
}

// reopenIfRotated checks, after reading to EOF, whether the path no longer
// names the open file (rotation moved it aside and a new one appeared) or the
// file shrank below the read offset (truncation). Either way the new content
// starts at the beginning, so it returns a fresh handle at offset zero; nil
// means keep polling the current handle.
func (t *Tailer) reopenIfRotated(f *os.File, offset int64) *os.File {
	cur, err := f.Stat()
	if err != nil {
		return nil
	}
	fi, err := os.Stat(t.Path)
	if err != nil {
		// Moved aside with no replacement yet; the next poll will see it.
		return nil
	}
	if os.SameFile(cur, fi) && fi.Size() >= offset {
		return nil
	}
	nf, err := os.Open(t.Path)
	if err != nil {
		return nil
	}
	return nf
}

func (t *Tailer) emit(tag string, line []byte) {
	s := string(line)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	t.Out.WriteLine(tag + s + "\n")
}

// sleepOrDone sleeps for d and reports false if ctx was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
