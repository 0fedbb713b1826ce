package controller

import (
	"errors"
	"sync"
	"time"
)

// fakeUART is an in-memory serialhal.UART for tests, mirroring
// halfduplex's own test fake: bytes pushed via Feed are delivered to
// ReadByte in order, and Write calls are recorded for inspection.
type fakeUART struct {
	mu      sync.Mutex
	rx      []byte
	written [][]byte
}

func (f *fakeUART) Feed(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, b...)
}

func (f *fakeUART) ReadByte(deadline time.Time) (byte, error) {
	for {
		f.mu.Lock()
		if len(f.rx) > 0 {
			b := f.rx[0]
			f.rx = f.rx[1:]
			f.mu.Unlock()
			return b, nil
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			return 0, errors.New("fakeUART: read timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeUART) Write(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.mu.Lock()
	f.written = append(f.written, cp)
	f.mu.Unlock()
	return nil
}

func (f *fakeUART) Close() error { return nil }

func (f *fakeUART) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}
