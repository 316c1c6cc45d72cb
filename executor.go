package ldbridge

import (
	"sync"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

// Executor runs callbacks into the application on the goroutine that owns the
// application side of the channel (its "main thread").
type Executor interface {
	Post(task func())
}

// EventLoop is an Executor backed by a single goroutine. Tasks run in the order posted.
type EventLoop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	mutex     sync.RWMutex
	closed    bool
}

func NewEventLoop() *EventLoop {
	l := &EventLoop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer close(l.done)
	for task := range l.tasks {
		l.runTask(task)
	}
}

func (l *EventLoop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			_ = util.Errorf("Recovered from panic in posted task: %v", r)
		}
	}()
	task()
}

// Post queues task. Tasks posted after Close are dropped.
func (l *EventLoop) Post(task func()) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		util.Warnf("Dropping task posted to a closed event loop")
		return
	}
	l.tasks <- task
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (l *EventLoop) Close() {
	l.closeOnce.Do(func() {
		l.mutex.Lock()
		l.closed = true
		close(l.tasks)
		l.mutex.Unlock()
	})
	<-l.done
}
