package splatter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Statistics is the read-only diagnostics snapshot exposed by the engine.
type Statistics struct {
	Capacity      int
	Alive         int
	FreelistCount int
	LastFrameMs   float64
	AvgFrameMs    float64
}

// frameWindow keeps a rolling window of frame durations for the average
// frame time statistic.
type frameWindow struct {
	samples []float64
	next    int
	filled  int
	last    float64
}

func newFrameWindow(size int) *frameWindow {
	if size < 1 {
		size = 1
	}
	return &frameWindow{samples: make([]float64, size)}
}

func (w *frameWindow) Record(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	w.last = ms
	w.samples[w.next] = ms
	w.next = (w.next + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
}

func (w *frameWindow) Last() float64 { return w.last }

func (w *frameWindow) Avg() float64 {
	if w.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < w.filled; i++ {
		sum += w.samples[i]
	}
	return sum / float64(w.filled)
}

// Profiler accumulates named scope timings and counters per frame.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	found := false
	for _, n := range p.Order {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		dur := p.Scopes[name]
		ms := float64(dur.Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.Counts[k]))
	}

	return sb.String()
}
