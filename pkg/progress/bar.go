package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Bar tracks the transfer of one file.
type Bar struct {
	Name      string
	Total     int64 // bytes, <= 0 when unknown
	Completed int64
	Width     int
	Status    string
	Done      bool

	mu sync.Mutex
	mp *MultiBar
}

func (b *Bar) Write(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Width == 0 {
		b.Width = 40
	}
	filled, status := 0, b.Status
	switch {
	case b.Done:
		filled = b.Width
	case b.Total > 0:
		filled = int(float64(b.Width) * float64(b.Completed) / float64(b.Total))
		if filled > b.Width {
			filled = b.Width
		}
		status = HumanSize(float64(b.Completed)) + "/" + HumanSize(float64(b.Total))
	}
	fmt.Fprintf(w, "%s [%s%s] %s\n", b.Name, strings.Repeat("+", filled), strings.Repeat("-", b.Width-filled), status)
}

func (b *Bar) SetStatus(status string, done bool) {
	b.mu.Lock()
	b.Status, b.Done = status, done
	b.mu.Unlock()
	b.notify()
}

func (b *Bar) add(n int64) {
	b.mu.Lock()
	b.Completed += n
	b.mu.Unlock()
	if b.mp != nil {
		b.mp.changed()
	}
}

func (b *Bar) notify() {
	if b.mp != nil {
		b.mp.print()
	}
}

// WrapReader counts bytes read from rc against the bar. Each call restarts the count so a
// retried request body is not counted twice.
func (b *Bar) WrapReader(rc io.ReadCloser, total int64) io.ReadCloser {
	b.mu.Lock()
	b.Total, b.Completed = total, 0
	b.mu.Unlock()
	b.notify()
	return &barReader{rc: rc, b: b}
}

type barReader struct {
	rc io.ReadCloser
	b  *Bar
}

func (r *barReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.b.add(int64(n))
	return n, err
}

func (r *barReader) Close() error {
	return r.rc.Close()
}
