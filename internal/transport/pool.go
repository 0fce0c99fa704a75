// Package transport hands out HTTP clients keyed by proxy URL. Clients are
// recycled after a fixed lifetime so DNS changes and stale connections are
// picked up.
package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/proxy"
)

const (
	DefaultLifetime = 2 * time.Minute
	noProxyKey      = "noproxy://"
)

type Pool struct {
	mu       sync.Mutex
	clients  *cache.Cache
	lifetime time.Duration
}

func NewPool(lifetime time.Duration) *Pool {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	// expired entries are dropped on access, no janitor goroutine
	c := cache.New(lifetime, 0)
	c.OnEvicted(func(_ string, v interface{}) {
		if cl, ok := v.(*http.Client); ok {
			cl.CloseIdleConnections()
		}
	})
	return &Pool{clients: c, lifetime: lifetime}
}

// Client returns the shared client for proxyURL. An empty proxyURL means a
// direct connection. Supported proxy schemes are http, https and socks5.
func (p *Pool) Client(proxyURL string) (*http.Client, error) {
	key := proxyURL
	if key == "" {
		key = noProxyKey
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clients.DeleteExpired()
	if v, ok := p.clients.Get(key); ok {
		return v.(*http.Client), nil
	}

	tr, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	cl := &http.Client{Transport: tr}
	p.clients.Set(key, cl, p.lifetime)
	return cl, nil
}

// Len is the number of live clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients.DeleteExpired()
	return p.clients.ItemCount()
}

// Close drops every client and closes their idle connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.clients.Items() {
		p.clients.Delete(k)
	}
}

func newTransport(proxyURL string) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if proxyURL == "" {
		return tr, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks proxy %s: dialer does not support contexts", u.Redacted())
		}
		tr.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("proxy %s: unsupported scheme %q", u.Redacted(), u.Scheme)
	}
	return tr, nil
}
