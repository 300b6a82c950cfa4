package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type eventKind int

const (
	eventProgress eventKind = iota
	eventSuccess
	eventFailure
	eventCancel
)

type event struct {
	kind     eventKind
	id       int64
	percent  int
	fileName string
}

// Async delivers notifications on its own goroutine so callers never wait
// on the sink. Pending progress events for the same job are coalesced to the
// newest percent; outcome events are always delivered. Panics raised by the
// sink are recovered and dropped.
type Async struct {
	sink Notifier

	mu     sync.Mutex
	queue  []event
	closed bool
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewAsync(sink Notifier) *Async {
	a := &Async{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) ShowProgress(id int64, percent int) {
	a.push(event{kind: eventProgress, id: id, percent: percent})
}

func (a *Async) ShowSuccess(id int64, fileName string) {
	a.push(event{kind: eventSuccess, id: id, fileName: fileName})
}

func (a *Async) ShowFailure(id int64, fileName string) {
	a.push(event{kind: eventFailure, id: id, fileName: fileName})
}

func (a *Async) Cancel(id int64) {
	a.push(event{kind: eventCancel, id: id})
}

func (a *Async) push(ev event) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	coalesced := false
	if ev.kind == eventProgress {
		for i := len(a.queue) - 1; i >= 0; i-- {
			if a.queue[i].id != ev.id {
				continue
			}
			if a.queue[i].kind == eventProgress {
				a.queue[i].percent = ev.percent
				coalesced = true
			}
			break
		}
	}
	if !coalesced {
		a.queue = append(a.queue, ev)
	}
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Async) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.wake:
			a.drain()
		case <-a.done:
			a.drain()
			return
		}
	}
}

func (a *Async) drain() {
	for {
		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			a.deliver(ev)
		}
	}
}

func (a *Async) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("op", "notify/async").Msgf("Notifier panic ignored: %v", r)
		}
	}()
	switch ev.kind {
	case eventProgress:
		a.sink.ShowProgress(ev.id, ev.percent)
	case eventSuccess:
		a.sink.ShowSuccess(ev.id, ev.fileName)
	case eventFailure:
		a.sink.ShowFailure(ev.id, ev.fileName)
	case eventCancel:
		a.sink.Cancel(ev.id)
	}
}

// Close delivers whatever is queued and stops the worker. Later calls are
// dropped.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	close(a.done)
	a.wg.Wait()
}
