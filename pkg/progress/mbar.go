package progress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type MultiBar struct {
	w               io.Writer
	width           int
	lastWrittenRows int
	bars            []*Bar
	barslock        sync.Mutex
	eg              *errgroup.Group

	haschange atomic.Bool
}

// NewMultiBar renders bars to dest; at most concurrent tasks run at once, 0 means 5.
func NewMultiBar(dest io.Writer, width int, concurrent int) *MultiBar {
	if concurrent <= 0 {
		concurrent = 5
	}
	mb := &MultiBar{w: dest, width: width, eg: &errgroup.Group{}}
	mb.eg.SetLimit(concurrent)
	return mb
}

func (m *MultiBar) changed() {
	m.haschange.Store(true)
}

func (m *MultiBar) print() {
	m.barslock.Lock()
	defer m.barslock.Unlock()

	buf := &bytes.Buffer{}
	if m.lastWrittenRows > 0 {
		buf.Write(CUU(uint8(min(m.lastWrittenRows, 255))))
		buf.Write(ED(0))
	}
	for _, b := range m.bars {
		b.Write(buf)
	}
	_, _ = m.w.Write(buf.Bytes())
	m.lastWrittenRows = len(m.bars)
}

// Run redraws changed bars until ctx is done.
func (m *MultiBar) Run(ctx context.Context) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if m.haschange.Swap(false) {
				m.print()
			}
		}
	}
}

func (m *MultiBar) Go(name string, initstatus string, fun func(b *Bar) error) {
	bar := &Bar{mp: m, Name: name, Status: initstatus, Width: m.width}
	m.barslock.Lock()
	m.bars = append(m.bars, bar)
	m.barslock.Unlock()
	m.print()

	m.eg.Go(func() error {
		if err := fun(bar); err != nil {
			bar.SetStatus("failed", false)
			return fmt.Errorf("%s: %w", name, err)
		}
		bar.SetStatus("done", true)
		return nil
	})
}

func (m *MultiBar) Wait() error {
	return m.eg.Wait()
}
