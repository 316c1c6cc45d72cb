package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/launchdarkly/eventsource"

	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/proto"
	"github.com/launchdarkly/flutter-client-bridge/util"
)

const (
	DefaultChannel     = "launchdarkly_flutter_client_sdk"
	DefaultCallTimeout = time.Second * 30

	contentTypeJSON = "application/json"
	// unknownMethod labels calls the handler does not implement, so client input cannot
	// grow the number of metric series.
	unknownMethod = "unknown"
	maxBodyBytes    = 1 << 20
)

// Handler receives the method calls arriving over the channel.
type Handler interface {
	HandleMethodCall(call api.MethodCall, result api.Result)
}

type ServerOptions struct {
	// Channel is the path segment the application addresses, /{channel}/invoke.
	Channel string
	// CallTimeout bounds how long an invoke request waits for its result.
	CallTimeout time.Duration
	Metrics     *Metrics
}

func (o *ServerOptions) CheckDefaults() {
	if o.Channel == "" {
		o.Channel = DefaultChannel
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
}

// Server exposes a method channel over HTTP. Calls are POSTed to /{channel}/invoke and
// calls pushed back to the application stream from /{channel}/events.
type Server struct {
	options ServerOptions
	router  chi.Router
	events  *eventsource.Server
	pushID  atomic.Uint64

	mutex   sync.RWMutex
	handler Handler
}

func NewServer(options ServerOptions) *Server {
	options.CheckDefaults()
	s := &Server{
		options: options,
		router:  chi.NewRouter(),
		events:  eventsource.NewServer(),
	}
	s.router.Post("/{channel}/invoke", s.invoke)
	s.router.Get("/{channel}/events", s.subscribe)
	return s
}

// SetHandler installs the handler of incoming calls. Until one is set calls fail with 503.
func (s *Server) SetHandler(handler Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handler = handler
}

func (s *Server) currentHandler() Handler {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the router so callers can mount additional routes such as /metrics.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) checkChannel(w http.ResponseWriter, r *http.Request) bool {
	if chi.URLParam(r, "channel") != s.options.Channel {
		http.NotFound(w, r)
		return false
	}
	return true
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	if !s.checkChannel(w, r) {
		return
	}
	s.events.Handler(s.options.Channel)(w, r)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.checkChannel(w, r) {
		return
	}
	useProtobuf := isProtobuf(r.Header.Get("Content-Type"))

	call, err := decodeCall(r, useProtobuf)
	if err != nil {
		s.options.Metrics.observeCall("", "bad_request", start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	handler := s.currentHandler()
	if handler == nil {
		s.options.Metrics.observeCall(unknownMethod, "unavailable", start)
		http.Error(w, "no handler is attached to the channel", http.StatusServiceUnavailable)
		return
	}

	future := api.NewResultFuture()
	handler.HandleMethodCall(call, future)

	ctx, cancel := context.WithTimeout(r.Context(), s.options.CallTimeout)
	defer cancel()
	response, err := future.Wait(ctx)
	if err != nil {
		s.options.Metrics.observeCall(call.Method, "timeout", start)
		http.Error(w, fmt.Sprintf("%s did not complete: %v", call.Method, err), http.StatusGatewayTimeout)
		return
	}

	body, contentType, err := encodeResponse(response, useProtobuf)
	if err != nil {
		_ = util.Errorf("Failed to encode the result of %s: %v", call.Method, err)
		s.options.Metrics.observeCall(call.Method, "encode_error", start)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	label := call.Method
	if response.Status == api.ResultStatus_NotImplemented {
		label = unknownMethod
	}
	s.options.Metrics.observeCall(label, string(response.Status), start)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func isProtobuf(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == proto.ContentType
}

func decodeCall(r *http.Request, useProtobuf bool) (api.MethodCall, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return api.MethodCall{}, err
	}
	if useProtobuf {
		return proto.UnmarshalMethodCall(body)
	}
	var call api.MethodCall
	if err = util.Decode(body, &call, util.StrictConfig()); err != nil {
		return api.MethodCall{}, err
	}
	if call.Method == "" {
		return api.MethodCall{}, errors.New("envelope has no method")
	}
	return call, nil
}

func encodeResponse(response api.MethodResponse, useProtobuf bool) ([]byte, string, error) {
	if useProtobuf {
		body, err := proto.MarshalMethodResponse(response)
		return body, proto.ContentType, err
	}
	body, err := util.Encode(response, nil)
	return body, contentTypeJSON, err
}

type pushEvent struct {
	id     string
	method string
	data   string
}

func (e pushEvent) Id() string    { return e.id }
func (e pushEvent) Event() string { return e.method }
func (e pushEvent) Data() string  { return e.data }

// InvokeMethod pushes a call to every application listening on the events stream.
func (s *Server) InvokeMethod(method string, arguments interface{}) {
	data, err := util.Encode(arguments, nil)
	if err != nil {
		_ = util.Errorf("Dropping %s push, arguments cannot be encoded: %v", method, err)
		return
	}
	id := strconv.FormatUint(s.pushID.Add(1), 10)
	s.events.Publish([]string{s.options.Channel}, pushEvent{id: id, method: method, data: string(data)})
	s.options.Metrics.observePush(method)
}

func (s *Server) Close() {
	s.events.Close()
}
