package fileprovider

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/open-feature/go-sdk/pkg/openfeature"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

const providerName = "ldbridge-file-provider"

// Provider is an OpenFeature provider serving the flags of a JSON file. The file is
// reloaded whenever it is written; the keys that changed are reported through a
// ProviderConfigChange event. A file that fails to load keeps the previous flags.
type Provider struct {
	path   string
	events chan openfeature.Event

	mutex   sync.RWMutex
	flags   map[string]Flag
	state   openfeature.State
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewProvider(path string) *Provider {
	return &Provider{
		path:   filepath.Clean(path),
		events: make(chan openfeature.Event, 16),
		flags:  map[string]Flag{},
		state:  openfeature.NotReadyState,
	}
}

func (p *Provider) Metadata() openfeature.Metadata {
	return openfeature.Metadata{Name: providerName}
}

func (p *Provider) Hooks() []openfeature.Hook {
	return []openfeature.Hook{}
}

func (p *Provider) load() (map[string]Flag, error) {
	if p.path == "" || p.path == "." {
		return nil, errors.New("no flag file path set")
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Init loads the file and starts watching it.
func (p *Provider) Init(evaluationContext openfeature.EvaluationContext) error {
	flags, err := p.load()
	if err != nil {
		p.setState(openfeature.ErrorState)
		return err
	}
	// The directory is watched so files replaced by rename are still seen.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	p.mutex.Lock()
	p.flags = flags
	p.state = openfeature.ReadyState
	p.watcher = watcher
	p.done = make(chan struct{})
	p.mutex.Unlock()

	go p.watch(watcher, p.done)
	util.Infof("Loaded %d flags from %s", len(flags), p.path)
	return nil
}

func (p *Provider) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				p.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			util.Warnf("Watching %s failed: %v", p.path, err)
		}
	}
}

func (p *Provider) reload() {
	flags, err := p.load()
	if err != nil {
		// a write can be observed before it completes
		util.Warnf("Keeping the previous flags, %s could not be loaded: %v", p.path, err)
		p.setState(openfeature.StaleState)
		p.emit(openfeature.ProviderStale, err.Error(), nil)
		return
	}

	p.mutex.Lock()
	changed := changedKeys(p.flags, flags)
	recovered := p.state != openfeature.ReadyState
	p.flags = flags
	p.state = openfeature.ReadyState
	p.mutex.Unlock()

	if recovered {
		p.emit(openfeature.ProviderReady, "flag file loaded", nil)
	}
	if len(changed) > 0 {
		util.Infof("Flag values updated: %v", changed)
		p.emit(openfeature.ProviderConfigChange, "flag file changed", changed)
	}
}

func (p *Provider) emit(eventType openfeature.EventType, message string, flagChanges []string) {
	event := openfeature.Event{
		ProviderName: providerName,
		EventType:    eventType,
		ProviderEventDetails: openfeature.ProviderEventDetails{
			Message:     message,
			FlagChanges: flagChanges,
		},
	}
	select {
	case p.events <- event:
	default:
		util.Warnf("Dropping %s event, nobody is consuming provider events", eventType)
	}
}

func (p *Provider) setState(state openfeature.State) {
	p.mutex.Lock()
	p.state = state
	p.mutex.Unlock()
}

// Shutdown stops watching the file. Evaluations keep serving the last flags loaded.
func (p *Provider) Shutdown() {
	p.mutex.Lock()
	watcher, done := p.watcher, p.done
	p.watcher = nil
	p.state = openfeature.NotReadyState
	p.mutex.Unlock()

	if watcher != nil {
		_ = watcher.Close()
		<-done
	}
}

func (p *Provider) Status() openfeature.State {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.state
}

func (p *Provider) EventChannel() <-chan openfeature.Event {
	return p.events
}

// Flags returns a copy of the flags currently served.
func (p *Provider) Flags() map[string]Flag {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	flags := make(map[string]Flag, len(p.flags))
	for key, flag := range p.flags {
		flags[key] = flag
	}
	return flags
}

// resolve returns the default variation of flag. ok is false when the caller's default
// must be served, either because of an error or because the flag is disabled.
func (p *Provider) resolve(flag string) (value interface{}, detail openfeature.ProviderResolutionDetail, ok bool) {
	p.mutex.RLock()
	f, found := p.flags[flag]
	p.mutex.RUnlock()

	if !found {
		return nil, openfeature.ProviderResolutionDetail{
			ResolutionError: openfeature.NewFlagNotFoundResolutionError("flag " + flag + " is not defined"),
			Reason:          openfeature.ErrorReason,
		}, false
	}
	if !f.enabled() {
		return nil, openfeature.ProviderResolutionDetail{Reason: openfeature.DisabledReason}, false
	}
	return f.Variations[f.DefaultVariation], openfeature.ProviderResolutionDetail{
		Reason:  openfeature.StaticReason,
		Variant: strconv.Itoa(f.DefaultVariation),
	}, true
}

func evaluate[T any](p *Provider, flag string, defaultValue T, convert func(interface{}) (T, bool)) (T, openfeature.ProviderResolutionDetail) {
	value, detail, ok := p.resolve(flag)
	if !ok {
		return defaultValue, detail
	}
	converted, ok := convert(value)
	if !ok {
		return defaultValue, openfeature.ProviderResolutionDetail{
			ResolutionError: openfeature.NewTypeMismatchResolutionError("flag " + flag + " has a value of another type"),
			Reason:          openfeature.ErrorReason,
		}
	}
	return converted, detail
}

func (p *Provider) BooleanEvaluation(ctx context.Context, flag string, defaultValue bool, evalCtx openfeature.FlattenedContext) openfeature.BoolResolutionDetail {
	value, detail := evaluate(p, flag, defaultValue, func(v interface{}) (bool, bool) {
		b, ok := v.(bool)
		return b, ok
	})
	return openfeature.BoolResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

func (p *Provider) StringEvaluation(ctx context.Context, flag string, defaultValue string, evalCtx openfeature.FlattenedContext) openfeature.StringResolutionDetail {
	value, detail := evaluate(p, flag, defaultValue, func(v interface{}) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
	return openfeature.StringResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

func (p *Provider) FloatEvaluation(ctx context.Context, flag string, defaultValue float64, evalCtx openfeature.FlattenedContext) openfeature.FloatResolutionDetail {
	value, detail := evaluate(p, flag, defaultValue, func(v interface{}) (float64, bool) {
		f, ok := v.(float64)
		return f, ok
	})
	return openfeature.FloatResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

// IntEvaluation serves numbers without a fractional part.
func (p *Provider) IntEvaluation(ctx context.Context, flag string, defaultValue int64, evalCtx openfeature.FlattenedContext) openfeature.IntResolutionDetail {
	value, detail := evaluate(p, flag, defaultValue, func(v interface{}) (int64, bool) {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	})
	return openfeature.IntResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

func (p *Provider) ObjectEvaluation(ctx context.Context, flag string, defaultValue interface{}, evalCtx openfeature.FlattenedContext) openfeature.InterfaceResolutionDetail {
	value, detail := evaluate(p, flag, defaultValue, func(v interface{}) (interface{}, bool) {
		return v, true
	})
	return openfeature.InterfaceResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}
