package meili

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	indexPageSize       = 100
	clientName          = "Meilisync Go"
)

// Config holds the remote engine connection settings.
type Config struct {
	Host         string // base URL, e.g. http://localhost:7700
	APIKey       string
	Timeout      time.Duration
	ClientAgents []string
	// Sync makes every mutating call wait for its task to finish.
	Sync         bool
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Client wraps the Meilisearch SDK with task handling and error mapping.
// Safe for concurrent use.
type Client struct {
	sm   meilisearch.ServiceManager
	sync bool
	poll time.Duration
}

// New creates a remote client. No request is made.
func New(cfg Config) (*Client, error) {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		return nil, errors.New("meili: host required")
	}
	if _, err := url.Parse(host); err != nil {
		return nil, fmt.Errorf("meili: parse host: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	agent := clientName
	if len(cfg.ClientAgents) > 0 {
		agent += ";" + strings.Join(cfg.ClientAgents, ";")
	}
	withAgent := *hc
	withAgent.Transport = &agentTransport{base: hc.Transport, agent: agent}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	opts := []meilisearch.Option{meilisearch.WithCustomClient(&withAgent)}
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}
	return &Client{
		sm:   meilisearch.New(host, opts...),
		sync: cfg.Sync,
		poll: poll,
	}, nil
}

// agentTransport reports the client agents on every request.
type agentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *agentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-Meilisearch-Client", t.agent)
	r.Header.Set("User-Agent", t.agent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// Sync reports whether mutating calls wait for their tasks.
func (c *Client) Sync() bool { return c.sync }

// Health checks that the engine answers /health.
func (c *Client) Health(ctx context.Context) error {
	h, err := c.sm.HealthWithContext(ctx)
	if err != nil {
		return wrapErr("health", err)
	}
	if h.Status != "available" {
		return fmt.Errorf("health: engine status %q", h.Status)
	}
	return nil
}

// ListIndexes returns every index, following pagination.
func (c *Client) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	var all []IndexInfo
	offset := 0
	for {
		page, err := c.sm.ListIndexesWithContext(ctx, &meilisearch.IndexesQuery{
			Offset: int64(offset),
			Limit:  indexPageSize,
		})
		if err != nil {
			return nil, wrapErr("list indexes", err)
		}
		for _, r := range page.Results {
			all = append(all, IndexInfo{
				UID:        r.UID,
				PrimaryKey: r.PrimaryKey,
				CreatedAt:  r.CreatedAt,
				UpdatedAt:  r.UpdatedAt,
			})
		}
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= int(page.Total) {
			return all, nil
		}
	}
}

// GetIndex fetches a single index. Missing indexes match ErrNotFound.
func (c *Client) GetIndex(ctx context.Context, name string) (*IndexInfo, error) {
	r, err := c.sm.GetIndexWithContext(ctx, name)
	if err != nil {
		return nil, wrapErr("get index", err)
	}
	return &IndexInfo{UID: r.UID, PrimaryKey: r.PrimaryKey, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

// CreateIndex creates the index unless it already exists, in which case
// it returns nil, nil.
func (c *Client) CreateIndex(ctx context.Context, name, primaryKey string) (*TaskInfo, error) {
	indexes, err := c.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.UID == name {
			return nil, nil
		}
	}

	info, err := c.sm.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: name, PrimaryKey: primaryKey})
	return c.handleSync(ctx, "create index", info, err)
}

// DeleteIndex removes the index and all of its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) (*TaskInfo, error) {
	info, err := c.sm.DeleteIndexWithContext(ctx, name)
	return c.handleSync(ctx, "delete index", info, err)
}

// UpdateSettings applies the managed settings in one request.
// Nil displayed/searchable lists become ["*"]. Empty filterable/sortable
// lists are left out of the request and keep the index value.
func (c *Client) UpdateSettings(ctx context.Context, name string, s Settings) (*TaskInfo, error) {
	if s.DisplayedAttributes == nil {
		s.DisplayedAttributes = []string{"*"}
	}
	if s.SearchableAttributes == nil {
		s.SearchableAttributes = []string{"*"}
	}
	info, err := c.sm.Index(name).UpdateSettingsWithContext(ctx, &meilisearch.Settings{
		DisplayedAttributes:  s.DisplayedAttributes,
		SearchableAttributes: s.SearchableAttributes,
		FilterableAttributes: s.FilterableAttributes,
		SortableAttributes:   s.SortableAttributes,
	})
	return c.handleSync(ctx, "update settings", info, err)
}

// UpdateDisplayed sets displayedAttributes. A nil list is a no-op.
func (c *Client) UpdateDisplayed(ctx context.Context, name string, attrs []string) (*TaskInfo, error) {
	if attrs == nil {
		return nil, nil
	}
	info, err := c.sm.Index(name).UpdateDisplayedAttributesWithContext(ctx, &attrs)
	return c.handleSync(ctx, "update displayed attributes", info, err)
}

// UpdateSearchable sets searchableAttributes. A nil list is a no-op.
func (c *Client) UpdateSearchable(ctx context.Context, name string, attrs []string) (*TaskInfo, error) {
	if attrs == nil {
		return nil, nil
	}
	info, err := c.sm.Index(name).UpdateSearchableAttributesWithContext(ctx, &attrs)
	return c.handleSync(ctx, "update searchable attributes", info, err)
}

// UpdateFilterable sets filterableAttributes. A nil list is a no-op.
func (c *Client) UpdateFilterable(ctx context.Context, name string, attrs []string) (*TaskInfo, error) {
	if attrs == nil {
		return nil, nil
	}
	info, err := c.sm.Index(name).UpdateFilterableAttributesWithContext(ctx, &attrs)
	return c.handleSync(ctx, "update filterable attributes", info, err)
}

// UpdateSortable sets sortableAttributes. A nil list is a no-op.
func (c *Client) UpdateSortable(ctx context.Context, name string, attrs []string) (*TaskInfo, error) {
	if attrs == nil {
		return nil, nil
	}
	info, err := c.sm.Index(name).UpdateSortableAttributesWithContext(ctx, &attrs)
	return c.handleSync(ctx, "update sortable attributes", info, err)
}

// AddDocuments adds or replaces documents.
func (c *Client) AddDocuments(ctx context.Context, name string, docs []map[string]any) (*TaskInfo, error) {
	info, err := c.sm.Index(name).AddDocumentsWithContext(ctx, docs)
	return c.handleSync(ctx, "add documents", info, err)
}

// DeleteDocument removes one document by its primary key value.
func (c *Client) DeleteDocument(ctx context.Context, name, id string) (*TaskInfo, error) {
	info, err := c.sm.Index(name).DeleteDocumentWithContext(ctx, id)
	return c.handleSync(ctx, "delete document", info, err)
}

// DeleteAllDocuments empties the index, keeping its settings.
func (c *Client) DeleteAllDocuments(ctx context.Context, name string) (*TaskInfo, error) {
	info, err := c.sm.Index(name).DeleteAllDocumentsWithContext(ctx)
	return c.handleSync(ctx, "delete all documents", info, err)
}

// GetStats returns document statistics of the index.
func (c *Client) GetStats(ctx context.Context, name string) (*Stats, error) {
	st, err := c.sm.Index(name).GetStatsWithContext(ctx)
	if err != nil {
		return nil, wrapErr("get stats", err)
	}
	return &Stats{
		NumberOfDocuments: st.NumberOfDocuments,
		IsIndexing:        st.IsIndexing,
		FieldDistribution: st.FieldDistribution,
	}, nil
}

// Search runs a search request against the index. A zero limit returns
// no hits without calling the engine.
func (c *Client) Search(ctx context.Context, name string, req SearchRequest) (*SearchResponse, error) {
	if req.Limit == 0 {
		return &SearchResponse{Hits: []map[string]any{}, Query: req.Q, Offset: req.Offset}, nil
	}

	sr := &meilisearch.SearchRequest{
		Offset:               int64(req.Offset),
		Limit:                int64(req.Limit),
		Sort:                 req.Sort,
		AttributesToSearchOn: req.AttributesToSearchOn,
	}
	if len(req.Filter) > 0 {
		sr.Filter = req.Filter
	}
	switch req.MatchingStrategy {
	case MatchingLast:
		sr.MatchingStrategy = MatchingLast
	case MatchingAll:
		sr.MatchingStrategy = MatchingAll
	}

	raw, err := c.sm.Index(name).SearchRawWithContext(ctx, req.Q, sr)
	if err != nil {
		return nil, wrapErr("search", err)
	}
	var resp SearchResponse
	dec := json.NewDecoder(bytes.NewReader(*raw))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	for _, hit := range resp.Hits {
		Normalize(hit)
	}
	return &resp, nil
}

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, uid int64) (*Task, error) {
	t, err := c.sm.GetTaskWithContext(ctx, uid)
	if err != nil {
		return nil, wrapErr("get task", err)
	}
	return fromTask(t), nil
}

// WaitForTask polls the task until it reaches a terminal status or ctx is done.
func (c *Client) WaitForTask(ctx context.Context, uid int64) (*Task, error) {
	t, err := c.sm.WaitForTaskWithContext(ctx, uid, c.poll)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wait for task %d: %w", uid, ctx.Err())
		}
		return nil, wrapErr("wait for task", err)
	}
	return fromTask(t), nil
}

// Await waits for the acknowledged task and returns *TaskFailedError
// unless it succeeded. A nil info is a no-op.
func (c *Client) Await(ctx context.Context, info *TaskInfo) error {
	if info == nil || info.Status == TaskSucceeded {
		return nil
	}
	task, err := c.WaitForTask(ctx, info.TaskUID)
	if err != nil {
		return err
	}
	info.Status = task.Status
	if task.Status != TaskSucceeded {
		return &TaskFailedError{Task: *task}
	}
	return nil
}

// handleSync converts the SDK acknowledgement and resolves the task
// immediately when the client runs in sync mode.
func (c *Client) handleSync(ctx context.Context, op string, ack *meilisearch.TaskInfo, err error) (*TaskInfo, error) {
	if err != nil {
		return nil, wrapErr(op, err)
	}
	info := &TaskInfo{
		TaskUID:    ack.TaskUID,
		IndexUID:   ack.IndexUID,
		Status:     string(ack.Status),
		Type:       string(ack.Type),
		EnqueuedAt: ack.EnqueuedAt,
	}
	if !c.sync {
		return info, nil
	}
	if err := c.Await(ctx, info); err != nil {
		return info, err
	}
	return info, nil
}

func fromTask(t *meilisearch.Task) *Task {
	out := &Task{
		UID:        t.UID,
		IndexUID:   t.IndexUID,
		Status:     string(t.Status),
		Type:       string(t.Type),
		EnqueuedAt: t.EnqueuedAt,
	}
	if !t.FinishedAt.IsZero() {
		finished := t.FinishedAt
		out.FinishedAt = &finished
	}
	if t.Error.Code != "" || t.Error.Message != "" {
		out.Error = &TaskError{
			Message: t.Error.Message,
			Code:    string(t.Error.Code),
			Type:    string(t.Error.Type),
			Link:    t.Error.Link,
		}
	}
	return out
}

// wrapErr turns SDK response errors into *APIError and prefixes the rest with op.
func wrapErr(op string, err error) error {
	var merr *meilisearch.Error
	if errors.As(err, &merr) && merr.StatusCode != 0 {
		apiErr := &APIError{
			StatusCode: merr.StatusCode,
			Op:         op,
			Message:    merr.MeilisearchApiError.Message,
			Code:       string(merr.MeilisearchApiError.Code),
			Type:       string(merr.MeilisearchApiError.Type),
			Link:       merr.MeilisearchApiError.Link,
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(merr.StatusCode)
		}
		return apiErr
	}
	return fmt.Errorf("%s: %w", op, err)
}
