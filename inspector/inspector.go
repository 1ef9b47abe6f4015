// Package inspector records per-worker execution/validation timelines
// during a block's parallel run and renders them as an SVG for visual
// debugging (spec §8). Recording is opt-in: the executor only calls
// Measure when an Inspector was actually requested, so the instrumentation
// costs nothing on the hot path otherwise.
package inspector

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type eventRecord struct {
	task       Task
	start, end time.Time
}

// workerLog is one worker goroutine's append-only event history. Go has no
// stable equivalent of Rust's std::thread::current().id(), so callers
// identify their lane with an explicit workerID handed out by the worker
// pool, rather than reaching for goroutine-id introspection hacks.
type workerLog struct {
	mu     sync.Mutex
	events []eventRecord
}

// Inspector is a registry of per-worker timelines, in the same
// sync.Map-of-handles shape as revm_bridge's StateDB handle registry: any
// worker can record into its own lane without contending with the others.
type Inspector struct {
	workers sync.Map // map[int]*workerLog
}

// New returns an empty Inspector ready to record one block's execution.
func New() *Inspector {
	return &Inspector{}
}

// Clear discards all recorded events, for reuse across blocks.
func (ins *Inspector) Clear() {
	ins.workers = sync.Map{}
}

func (ins *Inspector) logFor(workerID int) *workerLog {
	if v, ok := ins.workers.Load(workerID); ok {
		return v.(*workerLog)
	}
	wl := &workerLog{}
	actual, _ := ins.workers.LoadOrStore(workerID, wl)
	return actual.(*workerLog)
}

// Record appends one completed interval to workerID's timeline.
func (ins *Inspector) Record(workerID int, task Task, start, end time.Time) {
	wl := ins.logFor(workerID)
	wl.mu.Lock()
	wl.events = append(wl.events, eventRecord{task: task, start: start, end: end})
	wl.mu.Unlock()
}

// Measure times f and records the interval under task/workerID.
func (ins *Inspector) Measure(workerID int, task Task, f func()) {
	start := time.Now()
	f()
	ins.Record(workerID, task, start, time.Now())
}

type rectEntry struct {
	r     rect
	label string
	hue   float64
}

// ToSVG renders every recorded interval as one normalized SVG document,
// one lane per worker ordered by each worker's first observed event,
// execution intervals drawn wide and validation intervals drawn narrow,
// hue distinguishing incarnation number (spec §8).
func (ins *Inspector) ToSVG(createdAt, droppedAt time.Time) string {
	type workerEvents struct {
		events []eventRecord
	}
	var workers []workerEvents
	ins.workers.Range(func(_, value any) bool {
		wl := value.(*workerLog)
		wl.mu.Lock()
		events := make([]eventRecord, len(wl.events))
		copy(events, wl.events)
		wl.mu.Unlock()
		workers = append(workers, workerEvents{events: events})
		return true
	})

	sort.Slice(workers, func(i, j int) bool {
		return earliestStart(workers[i].events, createdAt) < earliestStart(workers[j].events, createdAt)
	})

	var entries []rectEntry
	for lane, w := range workers {
		for _, e := range w.events {
			width := 0.8
			if e.task.Kind == TaskValidation {
				width = 0.08
			}
			x0 := float64(lane) - width/2
			x1 := float64(lane) + width/2
			y0 := e.start.Sub(createdAt).Seconds()
			y1 := e.end.Sub(createdAt).Seconds()
			entries = append(entries, rectEntry{
				r:     rect{x0: x0, y0: y0, x1: x1, y1: y1},
				label: e.task.String(),
				hue:   hueFor(e.task),
			})
		}
	}

	bounds := []rect{{x0: 0, y0: 0, x1: float64(len(workers)), y1: droppedAt.Sub(createdAt).Seconds()}}
	for _, e := range entries {
		bounds = append(bounds, e.r)
	}
	bounding := unionAll(bounds)

	var lines []string
	lines = append(lines, "<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 1 1' width='100%' height='100%' preserveAspectRatio='none'>")
	lines = append(lines, "<style>rect:hover { opacity: 0.5; }</style>")
	for _, e := range entries {
		lines = append(lines, e.r.toRatio(bounding).toSVGRect(e.label, e.hue))
	}
	lines = append(lines, "</svg>")
	return strings.Join(lines, "\n")
}

func earliestStart(events []eventRecord, createdAt time.Time) float64 {
	min := math.Inf(1)
	for _, e := range events {
		if d := e.start.Sub(createdAt).Seconds(); d < min {
			min = d
		}
	}
	return min
}

func hueFor(t Task) float64 {
	factor := math.Pow(0.5, float64(t.Version.Incarnation)) * 120.0
	if t.Kind == TaskValidation {
		return 360.0 - factor
	}
	return factor
}

func (t Task) String() string {
	switch t.Kind {
	case TaskExecution:
		return fmt.Sprintf("Execution(%s)", t.Version)
	case TaskValidation:
		return fmt.Sprintf("Validation(%s)", t.Version)
	default:
		return "Unknown"
	}
}
