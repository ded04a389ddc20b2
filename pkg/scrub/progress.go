package scrub

import (
	"fmt"
	"io"
	"time"

	"github.com/remora-tools/remora/pkg/bus"
	"github.com/remora-tools/remora/pkg/bus/events"
)

// Progress writes one status line per completed bucket to a sink, in the
// operator-familiar form
//
//	Processing bucket: 17/120, objects processed: 523144, rate: 1204.1 obj/s
//
// It subscribes to the run's worker events on the bus and writes from a
// single goroutine, so workers never block on a slow sink and lines never
// interleave.
type Progress struct {
	w     io.Writer
	bus   bus.Bus
	topic string

	total      int
	done       int
	cumulative uint64

	lastAt         time.Time
	lastCumulative uint64

	events  chan events.WorkerEvent
	stopped chan struct{}
	handler func(events.WorkerEvent)
}

// StartProgress begins reporting worker events for the named pool to w.
// Call [Progress.Stop] once the run is over to drain and detach.
func StartProgress(w io.Writer, b bus.Bus, pool string, total int) (*Progress, error) {
	p := &Progress{
		w:       w,
		bus:     b,
		topic:   events.TopicWorker(pool),
		total:   total,
		lastAt:  time.Now(),
		events:  make(chan events.WorkerEvent, 128),
		stopped: make(chan struct{}),
	}
	p.handler = func(event events.WorkerEvent) {
		p.events <- event
	}
	if err := b.SubscribeAsync(p.topic, p.handler); err != nil {
		return nil, fmt.Errorf("subscribing progress reporter: %w", err)
	}
	go p.run()
	return p, nil
}

func (p *Progress) run() {
	defer close(p.stopped)
	for event := range p.events {
		if event.Status == events.WorkerRunning {
			continue
		}
		p.done++
		p.cumulative += event.ObjectsScanned
		p.emit()
	}
}

func (p *Progress) emit() {
	now := time.Now()
	elapsed := now.Sub(p.lastAt).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.cumulative-p.lastCumulative) / elapsed
	}
	p.lastAt = now
	p.lastCumulative = p.cumulative

	_, err := fmt.Fprintf(p.w, "Processing bucket: %d/%d, objects processed: %d, rate: %.1f obj/s\n",
		p.done, p.total, p.cumulative, rate)
	if err != nil {
		log.Warnf("writing progress line: %v", err)
	}
}

// Stop waits for already-published events to be reported, then detaches the
// reporter from the bus.
func (p *Progress) Stop() {
	p.bus.WaitAsync()
	if err := p.bus.Unsubscribe(p.topic, p.handler); err != nil {
		log.Debugf("unsubscribing progress reporter: %v", err)
	}
	close(p.events)
	<-p.stopped
}
