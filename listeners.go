package ldbridge

import (
	"sync"

	"github.com/google/uuid"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

type flagListener struct {
	id     string
	cancel func()
}

// flagListeners tracks the per-flag listeners the application has asked for. At most one
// native listener is registered per flag key.
type flagListeners struct {
	mutex     sync.Mutex
	listeners map[string]flagListener
}

func newFlagListeners() *flagListeners {
	return &flagListeners{listeners: make(map[string]flagListener)}
}

// add registers a listener for flagKey using register, unless one already exists.
// It reports whether a new listener was registered.
func (l *flagListeners) add(flagKey string, register func() (cancel func())) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, exists := l.listeners[flagKey]; exists {
		return false
	}
	listener := flagListener{id: uuid.New().String(), cancel: register()}
	l.listeners[flagKey] = listener
	util.Debugf("Registered flag listener %s for %s", listener.id, flagKey)
	return true
}

// remove cancels the listener of flagKey, if any.
func (l *flagListeners) remove(flagKey string) bool {
	l.mutex.Lock()
	listener, exists := l.listeners[flagKey]
	delete(l.listeners, flagKey)
	l.mutex.Unlock()

	if !exists {
		return false
	}
	if listener.cancel != nil {
		listener.cancel()
	}
	util.Debugf("Removed flag listener %s for %s", listener.id, flagKey)
	return true
}

// clear cancels every listener.
func (l *flagListeners) clear() {
	l.mutex.Lock()
	listeners := l.listeners
	l.listeners = make(map[string]flagListener)
	l.mutex.Unlock()

	for _, listener := range listeners {
		if listener.cancel != nil {
			listener.cancel()
		}
	}
}
