package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/launchdarkly/eventsource"
	"github.com/matryer/try"

	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/proto"
	"github.com/launchdarkly/flutter-client-bridge/util"
)

type ClientOptions struct {
	HTTPClient *http.Client
	// Protobuf sends envelopes as protobuf Structs instead of JSON.
	Protobuf bool
	// RetryTimeout is the initial reconnect delay of the events stream.
	RetryTimeout time.Duration
	// MaxAttempts bounds how often an undelivered call is sent. Defaults to 3.
	MaxAttempts int
}

// Client is the application side of a channel served by Server.
type Client struct {
	baseURL string
	options ClientOptions
	stream  *eventsource.Stream
	quit    chan struct{}
}

// NewClient creates a client for the channel at baseURL, e.g. http://localhost:8080/my_channel.
func NewClient(baseURL string, options ClientOptions) *Client {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.RetryTimeout <= 0 {
		options.RetryTimeout = time.Second
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 3
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), options: options}
}

// InvokeMethod calls method and returns its result. A call that resolved with an error
// returns a *api.MethodError; an unknown method returns api.ErrNotImplemented.
func (c *Client) InvokeMethod(ctx context.Context, method string, arguments interface{}) (interface{}, error) {
	call := api.MethodCall{Method: method, Arguments: arguments}
	var body []byte
	var err error
	contentType := contentTypeJSON
	if c.options.Protobuf {
		contentType = proto.ContentType
		body, err = proto.MarshalMethodCall(call)
	} else {
		body, err = util.Encode(call, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}

	resp, respBody, err := c.post(ctx, body, contentType)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var response api.MethodResponse
	if isProtobuf(resp.Header.Get("Content-Type")) {
		response, err = proto.UnmarshalMethodResponse(respBody)
	} else {
		err = util.Decode(respBody, &response, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding result of %s: %w", method, err)
	}
	if err = response.Err(); err != nil {
		return nil, err
	}
	return response.Result, nil
}

// post sends an envelope, retrying when the request never reached a handler: transport
// errors and 503s while the server has no handler attached.
func (c *Client) post(ctx context.Context, body []byte, contentType string) (*http.Response, []byte, error) {
	var resp *http.Response
	var respBody []byte
	err := try.Do(func(attempt int) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
		// Don't retry if the request cannot be built
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)

		resp, err = c.options.HTTPClient.Do(req)
		if err != nil {
			return c.wait(ctx, attempt), err
		}
		respBody, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err == nil && resp.StatusCode == http.StatusServiceUnavailable && attempt < c.options.MaxAttempts {
			err = errors.New("channel has no handler attached")
		}
		if err != nil {
			return c.wait(ctx, attempt), err
		}
		return false, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

// wait sleeps with exponential backoff and reports whether another attempt should be made.
func (c *Client) wait(ctx context.Context, attempt int) bool {
	if attempt >= c.options.MaxAttempts || ctx.Err() != nil {
		return false
	}
	select {
	case <-time.After(time.Duration(exponentialBackoff(attempt)) * time.Millisecond):
		return true
	case <-ctx.Done():
		return false
	}
}

func exponentialBackoff(attempt int) float64 {
	delay := math.Pow(2, float64(attempt)) * 50
	randomSum := delay * 0.2 * rand.Float64()
	return delay + randomSum
}

// Listen subscribes to the calls the server pushes and runs handler for each, in order,
// until Close is called.
func (c *Client) Listen(handler func(method string, arguments interface{})) error {
	stream, err := eventsource.SubscribeWithURL(c.baseURL+"/events",
		eventsource.StreamOptionHTTPClient(c.options.HTTPClient),
		eventsource.StreamOptionInitialRetry(c.options.RetryTimeout),
		eventsource.StreamOptionUseBackoff(c.options.RetryTimeout*30),
		eventsource.StreamOptionUseJitter(0.25),
		eventsource.StreamOptionErrorHandler(func(err error) eventsource.StreamErrorHandlerResult {
			util.Debugf("Channel events - Error: %v", err)
			return eventsource.StreamErrorHandlerResult{CloseNow: false}
		}))
	if err != nil {
		return err
	}
	c.stream = stream
	c.quit = make(chan struct{})
	go c.receive(stream, c.quit, handler)
	return nil
}

func (c *Client) receive(stream *eventsource.Stream, quit <-chan struct{}, handler func(string, interface{})) {
	for {
		select {
		case <-quit:
			return
		case event, ok := <-stream.Events:
			if !ok {
				return
			}
			var arguments interface{}
			if err := util.Decode([]byte(event.Data()), &arguments, nil); err != nil {
				util.Warnf("Ignoring %s push with undecodable arguments: %v", event.Event(), err)
				continue
			}
			handler(event.Event(), arguments)
		}
	}
}

// Close stops listening for pushes.
func (c *Client) Close() {
	if c.stream != nil {
		close(c.quit)
		c.stream.Close()
		c.stream = nil
	}
}
