package remote

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/containerd/errdefs"
)

// MemoryTransport keeps one in-memory file system per host. Local
// locations are real files. It backs dry runs and tests.
type MemoryTransport struct {
	mu    sync.Mutex
	files map[string]map[string]string
	calls []string

	// Fail, when set, runs before every copy; a non-nil result fails it
	Fail func(src, dst Location) error
}

// NewMemoryTransport creates an empty transport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{files: make(map[string]map[string]string)}
}

// Put stores a file on host
func (m *MemoryTransport) Put(host, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[host] == nil {
		m.files[host] = make(map[string]string)
	}
	m.files[host][path] = content
}

// Get returns a file stored on host
func (m *MemoryTransport) Get(host, path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[host][path]
	return content, ok
}

// Paths lists the files stored on host
func (m *MemoryTransport) Paths(host string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files[host]))
	for p := range m.files[host] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Calls returns how many copies touched host
func (m *MemoryTransport) Calls(host string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == host {
			n++
		}
	}
	return n
}

// CallCount returns the number of copies attempted on any host
func (m *MemoryTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MemoryTransport) Copy(ctx context.Context, src, dst Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	remote := src
	if dst.IsRemote() {
		remote = dst
	}

	m.mu.Lock()
	m.calls = append(m.calls, remote.Host)
	fail := m.Fail
	m.mu.Unlock()

	if fail != nil {
		if err := fail(src, dst); err != nil {
			return err
		}
	}

	if src.IsRemote() {
		content, ok := m.Get(src.Host, src.Path)
		if !ok {
			return fmt.Errorf("%s: %w", src, errdefs.ErrNotFound)
		}
		return os.WriteFile(dst.Path, []byte(content), 0600)
	}

	data, err := os.ReadFile(src.Path)
	if err != nil {
		return err
	}
	m.Put(dst.Host, dst.Path, string(data))
	return nil
}
