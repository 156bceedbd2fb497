package bigfileclient

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	progressBarWidth     = 32
	progressRenderPeriod = 120 * time.Millisecond
)

// progressBar рисует ASCII-индикатор выполнения для потоков данных.
// Nil-индикатор ничего не делает.
type progressBar struct {
	out           io.Writer
	prefix        string
	total         int64
	current       int64
	lastRender    time.Time
	lastLineWidth int
	finished      bool
	mu            sync.Mutex
}

func newProgressBar(out io.Writer, prefix string, total int64) *progressBar {
	if out == nil {
		return nil
	}
	return &progressBar{
		out:    out,
		prefix: prefix,
		total:  total,
	}
}

func (p *progressBar) AddBytes(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.current += n
	p.mu.Unlock()
	p.render(false)
}

func (p *progressBar) render(force bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	now := time.Now()
	if !force && now.Sub(p.lastRender) < progressRenderPeriod {
		return
	}
	p.lastRender = now
	p.writeLocked(p.lineLocked(), "")
}

func (p *progressBar) lineLocked() string {
	var b strings.Builder
	b.Grow(len(p.prefix) + 64)
	b.WriteString(p.prefix)
	b.WriteByte(' ')

	if p.total <= 0 {
		b.WriteString(humanize.IBytes(uint64(p.current)))
		b.WriteString(" transferred")
		return b.String()
	}

	ratio := float64(p.current) / float64(p.total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(progressBarWidth) + 0.5)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", filled))
	b.WriteString(strings.Repeat(" ", progressBarWidth-filled))
	b.WriteString("] ")
	fmt.Fprintf(&b, "%3d%% ", int(ratio*100+0.5))
	b.WriteString(humanize.IBytes(uint64(p.current)))
	b.WriteByte('/')
	b.WriteString(humanize.IBytes(uint64(p.total)))

	return b.String()
}

// writeLocked перерисовывает строку, затирая хвост предыдущей.
func (p *progressBar) writeLocked(line, tail string) {
	width := len(line) + len(tail)
	padding := ""
	if p.lastLineWidth > width {
		padding = strings.Repeat(" ", p.lastLineWidth-width)
	}
	p.lastLineWidth = width
	fmt.Fprintf(p.out, "\r%s%s%s", line, tail, padding)
}

func (p *progressBar) Finish() {
	p.complete(nil)
}

func (p *progressBar) Fail(err error) {
	if err == nil {
		err = fmt.Errorf("failed")
	}
	p.complete(err)
}

func (p *progressBar) complete(err error) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true

	suffix := " ✓"
	if err != nil {
		suffix = fmt.Sprintf(" ✗ %v", err)
	}
	p.writeLocked(p.lineLocked(), suffix)
	fmt.Fprintln(p.out)
}

type progressWriter struct {
	bar *progressBar
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.bar.AddBytes(int64(len(p)))
	return len(p), nil
}
