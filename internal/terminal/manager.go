// Package terminal keeps named output buffers that stream to joined
// WebSocket clients. The daemon uses one for the operation log.
package terminal

import (
	"bytes"
	"sync"
)

const (
	maxBuffer  = 65536
	keepBuffer = 32768
)

// WriteFunc is a callback for streaming terminal output to a client.
type WriteFunc func(data string)

// Manager tracks all terminals by name.
type Manager struct {
	mu        sync.RWMutex
	terminals map[string]*Terminal
}

func NewManager() *Manager {
	return &Manager{terminals: make(map[string]*Terminal)}
}

// Get returns a terminal by name, or nil if not found.
func (m *Manager) Get(name string) *Terminal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terminals[name]
}

// Create registers a fresh terminal, closing any previous one with the same
// name.
func (m *Manager) Create(name string) *Terminal {
	t := newTerminal(name)
	m.mu.Lock()
	old := m.terminals[name]
	m.terminals[name] = t
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return t
}

// RemoveWriterFromAll unregisters a client from every terminal.
func (m *Manager) RemoveWriterFromAll(id string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.terminals {
		t.RemoveWriter(id)
	}
}

// Terminal is a bounded output buffer with fan-out to joined clients. Bare \n
// is stored as \r\n for xterm-style clients.
type Terminal struct {
	Name string

	mu      sync.RWMutex
	buffer  bytes.Buffer
	writers map[string]WriteFunc
	closed  bool
}

func newTerminal(name string) *Terminal {
	return &Terminal{
		Name:    name,
		writers: make(map[string]WriteFunc),
	}
}

// Write appends p to the buffer and fans it out to all writers. The buffer
// keeps the most recent output once it grows past 64KB.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, nil
	}

	data := normalizeLF(p)
	t.buffer.Write(data)
	if t.buffer.Len() > maxBuffer {
		b := t.buffer.Bytes()
		tail := append([]byte(nil), b[len(b)-keepBuffer:]...)
		t.buffer.Reset()
		t.buffer.Write(tail)
	}

	s := string(data)
	for _, w := range t.writers {
		w(s)
	}
	return len(p), nil
}

// JoinAndGetBuffer registers fn and returns the buffer under one lock so no
// output is delivered twice or lost between the two.
func (t *Terminal) JoinAndGetBuffer(id string, fn WriteFunc) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.writers[id] = fn
	}
	return t.buffer.String()
}

// RemoveWriter unregisters a client.
func (t *Terminal) RemoveWriter(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.writers, id)
}

// WriterCount returns the number of joined clients.
func (t *Terminal) WriterCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.writers)
}

// Close detaches every client. Later writes are dropped.
func (t *Terminal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.writers = nil
}

// normalizeLF turns bare \n into \r\n.
func normalizeLF(p []byte) []byte {
	if !bytes.Contains(p, []byte{'\n'}) {
		return p
	}
	out := make([]byte, 0, len(p)+8)
	for i, b := range p {
		if b == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, b)
	}
	return out
}
