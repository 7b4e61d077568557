package boardrun

import (
	"bytes"
	"sync"
	"time"
)

// readStep is what one Read call returns. A step with no data and no error
// is a read timeout.
type readStep struct {
	data []byte
	err  error
}

func data(s string) readStep { return readStep{data: []byte(s)} }
func fill(n int, b byte) readStep { return readStep{data: bytes.Repeat([]byte{b}, n)} }
func quiet() readStep { return readStep{} }
func fault(err error) readStep { return readStep{err: err} }
func steps(s ...readStep) []readStep { return s }

// mockTransport replays a script of reads. Data longer than the caller's
// buffer is handed out over several calls. Once the script runs out every
// Read times out.
type mockTransport struct {
	mu       sync.Mutex
	script   []readStep
	breakErr error
	idle     time.Duration // Pause on reads past the end of the script

	breaks     int
	breakOffs  int
	reads      int
	closed     bool
	flushedIn  bool
	flushedOut bool
}

func newMockTransport(script ...readStep) *mockTransport {
	return &mockTransport{script: script, idle: time.Millisecond}
}

func (m *mockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	m.reads++
	if len(m.script) == 0 {
		idle := m.idle
		m.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	defer m.mu.Unlock()

	step := m.script[0]
	n := copy(p, step.data)
	if n < len(step.data) {
		m.script[0].data = step.data[n:]
		return n, nil
	}
	m.script = m.script[1:]
	return n, step.err
}

func (m *mockTransport) SendBreak() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaks++
	return m.breakErr
}

func (m *mockTransport) SetBreak(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !on {
		m.breakOffs++
	}
	return nil
}

func (m *mockTransport) FlushInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushedIn = true
	return nil
}

func (m *mockTransport) FlushOutput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushedOut = true
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPortClosed
	}
	m.closed = true
	return nil
}

// remaining returns the number of unread script steps
func (m *mockTransport) remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed && m.flushedIn && m.flushedOut
}

func (m *mockTransport) opener() Opener {
	return func(string, Config) (Transport, error) {
		return m, nil
	}
}

// testConfig is DefaultConfig without the real-world pauses
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResetSettle = 0
	cfg.FilesystemSettle = 0
	return cfg
}
