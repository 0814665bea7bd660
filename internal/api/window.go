package api

import (
	"fmt"
	"sync"
)

// WindowBuffer holds downloaded bytes that have not been consumed yet.
// Offsets are absolute positions in the object; consumed bytes are
// released so memory stays bounded by one chunk.
type WindowBuffer struct {
	mu   sync.Mutex
	base int64
	buf  []byte
}

// Write appends p at the current end of the window
func (w *WindowBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// End is the absolute offset one past the last buffered byte
func (w *WindowBuffer) End() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.base + int64(len(w.buf))
}

// Buffered is the number of unconsumed bytes held
func (w *WindowBuffer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Take returns a copy of bytes [from, to) and releases everything before to
func (w *WindowBuffer) Take(from, to int64) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	end := w.base + int64(len(w.buf))
	if from < w.base || to > end || from > to {
		return nil, fmt.Errorf("window range [%d, %d) outside buffered [%d, %d)", from, to, w.base, end)
	}

	out := make([]byte, to-from)
	copy(out, w.buf[from-w.base:to-w.base])

	rest := w.buf[to-w.base:]
	if len(rest) == 0 {
		w.buf = w.buf[:0]
	} else {
		w.buf = append(w.buf[:0], rest...)
	}
	w.base = to
	return out, nil
}
