package meilisync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// RemoteIndex is the subset of the engine API used by registration, hooks,
// queries and bulk operations. *meili.Client implements it.
type RemoteIndex interface {
	Health(ctx context.Context) error
	CreateIndex(ctx context.Context, name, primaryKey string) (*meili.TaskInfo, error)
	UpdateSettings(ctx context.Context, name string, s meili.Settings) (*meili.TaskInfo, error)
	AddDocuments(ctx context.Context, name string, docs []map[string]any) (*meili.TaskInfo, error)
	DeleteDocument(ctx context.Context, name, id string) (*meili.TaskInfo, error)
	DeleteAllDocuments(ctx context.Context, name string) (*meili.TaskInfo, error)
	GetStats(ctx context.Context, name string) (*meili.Stats, error)
	Search(ctx context.Context, name string, req meili.SearchRequest) (*meili.SearchResponse, error)
	Await(ctx context.Context, info *meili.TaskInfo) error
}

var _ RemoteIndex = (*meili.Client)(nil)

// Handle is the type-erased view of a registered index used by the CLI
// and the admin server.
type Handle interface {
	Name() string
	TypeName() string
	Meta() Meta
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Sync(ctx context.Context, opts SyncOptions) (SyncReport, error)
}

// Client is the meilisync entry point. It owns the remote engine client
// and the registry of indexed entity types.
type Client struct {
	remote   RemoteIndex
	settings Settings
	obs      *observer

	mu     sync.RWMutex
	byName map[string]Handle
	byType map[string]Handle
}

// New creates a Client. No request is made to the engine.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{settings: DefaultSettings()}
	for _, o := range opts {
		o.apply(cfg)
	}
	cfg.settings.applyDefaults()
	if err := cfg.settings.validate(); err != nil {
		return nil, err
	}

	remote := cfg.remote
	if remote == nil {
		mc, err := meili.New(meili.Config{
			Host:         cfg.settings.URL(),
			APIKey:       cfg.settings.MasterKey,
			Timeout:      cfg.settings.Timeout,
			ClientAgents: cfg.settings.ClientAgents,
			Sync:         cfg.settings.Sync,
			PollInterval: cfg.poll,
			HTTPClient:   cfg.httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("meilisync: %w", err)
		}
		remote = mc
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		remote:   remote,
		settings: cfg.settings,
		obs:      obs,
		byName:   make(map[string]Handle),
		byType:   make(map[string]Handle),
	}, nil
}

// Settings returns the effective settings.
func (c *Client) Settings() Settings { return c.settings }

// Remote returns the engine client.
func (c *Client) Remote() RemoteIndex { return c.remote }

// Ping checks engine availability. Offline clients always succeed.
func (c *Client) Ping(ctx context.Context) (err error) {
	if c.settings.Offline {
		return nil
	}
	start := time.Now()
	defer func() { c.obs.observe("", "ping", start, err) }()

	if err = c.remote.Health(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// checkFree reports a configuration error when the index name or the
// type is already taken.
func (c *Client) checkFree(name, typeKey string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.byName[name]; ok {
		return configErrorf("index %q already registered", name)
	}
	if _, ok := c.byType[typeKey]; ok {
		return configErrorf("type %s already registered", typeKey)
	}
	return nil
}

func (c *Client) register(h Handle, typeKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[h.Name()]; ok {
		return configErrorf("index %q already registered", h.Name())
	}
	if _, ok := c.byType[typeKey]; ok {
		return configErrorf("type %s already registered", typeKey)
	}
	c.byName[h.Name()] = h
	c.byType[typeKey] = h
	return nil
}

// Lookup finds a registered index by index name, then by Go type name,
// bare or package qualified. A bare type name shared by types from
// different packages is a configuration error.
func (c *Client) Lookup(name string) (Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if h, ok := c.byName[name]; ok {
		return h, nil
	}
	if h, ok := c.byType[name]; ok {
		return h, nil
	}
	var found Handle
	for _, h := range c.byType {
		if h.TypeName() != name {
			continue
		}
		if found != nil {
			return nil, configErrorf("lookup %q: type name is ambiguous", name)
		}
		found = h
	}
	if found != nil {
		return found, nil
	}
	return nil, fmt.Errorf("lookup %q: %w", name, ErrNotFound)
}

// Indexes returns every registered index sorted by name.
func (c *Client) Indexes() []Handle {
	c.mu.RLock()
	out := make([]Handle, 0, len(c.byName))
	for _, h := range c.byName {
		out = append(out, h)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
