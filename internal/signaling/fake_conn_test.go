package signaling

import (
	"sync"
	"time"
)

// fakeConn is a minimal wsConnection double for exercising Client and Hub
// logic without a real network socket.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	reads    chan []byte
	closed   bool
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errConnClosed
	}
	return 1, data, nil // 1 == websocket.TextMessage
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := append([]byte(nil), data...)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

type fakeConnError string

func (e fakeConnError) Error() string { return string(e) }

const errConnClosed = fakeConnError("fake connection closed")
