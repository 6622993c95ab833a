package youtube

import (
	"io"
	"math"
	"sync"
)

// ProgressSink receives whole-number upload percentages.
type ProgressSink interface {
	Progress(percent int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(percent int)

func (f ProgressFunc) Progress(percent int) { f(percent) }

type nopSink struct{}

func (nopSink) Progress(int) {}

// progressReader counts bytes as the transport reads them. Values stay below
// 100 until finish is called so a rejected transfer never reports completion.
type progressReader struct {
	r     io.Reader
	total int64
	sink  ProgressSink

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(r io.Reader, total int64, sink ProgressSink) *progressReader {
	return &progressReader{r: r, total: total, sink: sink, last: -1}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := percent(p.read, p.total)
		if pct > 99 {
			pct = 99
		}
		p.emitLocked(pct)
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) start() {
	p.mu.Lock()
	p.emitLocked(0)
	p.mu.Unlock()
}

func (p *progressReader) finish() {
	p.mu.Lock()
	p.emitLocked(100)
	p.mu.Unlock()
}

func (p *progressReader) emitLocked(pct int) {
	if pct <= p.last {
		return
	}
	p.last = pct
	p.sink.Progress(pct)
}

func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}
