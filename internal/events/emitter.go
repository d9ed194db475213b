package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/util"
)

const (
	defaultBufferSize = 256
	writeTimeout      = 5 * time.Second
)

// Emitter fans security events out to the configured sinks from a single
// background goroutine. Emit never blocks the calling flow: when the buffer
// is full the event is dropped and counted.
type Emitter struct {
	sinks     []Sink
	ch        chan SecurityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewEmitter(bufferSize int, sinks ...Sink) *Emitter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if len(sinks) == 0 {
		sinks = []Sink{NoopSink{}}
	}

	e := &Emitter{
		sinks: sinks,
		ch:    make(chan SecurityEvent, bufferSize),
		done:  make(chan struct{}),
	}

	e.wg.Add(1)
	go e.run()

	return e
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case event := <-e.ch:
			e.write(event)
		case <-e.done:
			// Drain what is already buffered before shutting down.
			for {
				select {
				case event := <-e.ch:
					e.write(event)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) write(event SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, sink := range e.sinks {
		if err := sink.Write(ctx, event); err != nil {
			util.Warn("Security event sink write failed",
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// Emit queues one security event. Safe to call concurrently; never blocks.
func (e *Emitter) Emit(event SecurityEvent) {
	if e == nil || e.closed.Load() {
		return
	}

	select {
	case e.ch <- event:
	case <-e.done:
	default:
		e.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (e *Emitter) Dropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Close drains buffered events and stops the background goroutine.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
		e.wg.Wait()
	})
}
