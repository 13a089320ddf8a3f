package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// CompleteFunc performs one blocking model call.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Middleware decorates a CompleteFunc.
type Middleware func(next CompleteFunc) CompleteFunc

// Client routes requests to registered provider adapters and applies
// middleware around each call. It never retries.
type Client struct {
	mu         sync.RWMutex
	adapters   map[string]ProviderAdapter
	fallback   string
	middleware []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) { c.adapters[name] = adapter }
}

// WithDefaultProvider names the adapter used when a request has no Provider.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.fallback = name }
}

// WithMiddleware appends middleware. The first one given is outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) { c.middleware = append(c.middleware, mw...) }
}

// NewClient builds a Client. A lone provider is the default unless another
// is named.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{adapters: map[string]ProviderAdapter{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.fallback == "" && len(c.adapters) == 1 {
		c.fallback = c.providerNames()[0]
	}
	return c
}

// RegisterProvider adds adapter after construction. It becomes the default
// when none is set yet.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[name] = adapter
	if c.fallback == "" {
		c.fallback = name
	}
}

func (c *Client) providerNames() []string {
	names := make([]string, 0, len(c.adapters))
	for name := range c.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) adapterFor(provider string) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if provider == "" {
		provider = c.fallback
	}
	if provider == "" {
		return nil, &ConfigurationError{SDKError{Message: "no provider specified and no default provider configured"}}
	}
	if adapter, ok := c.adapters[provider]; ok {
		return adapter, nil
	}
	return nil, &ConfigurationError{SDKError{
		Message: fmt.Sprintf("provider %q is not registered (have %v)", provider, c.providerNames()),
	}}
}

// Complete sends req through the middleware chain to its provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.adapterFor(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	call := CompleteFunc(adapter.Complete)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		call = c.middleware[i](call)
	}
	return call(ctx, req)
}

// Close closes every adapter that implements Closer.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for _, name := range c.providerNames() {
		if closer, ok := c.adapters[name].(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
