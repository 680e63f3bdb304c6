package meili

import (
	"encoding/json"
	"time"
)

// Task statuses reported by the engine.
const (
	TaskEnqueued   = "enqueued"
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
	TaskCanceled   = "canceled"
)

// Matching strategies accepted by the search endpoint.
const (
	MatchingLast = "last"
	MatchingAll  = "all"
)

// TaskInfo is the acknowledgement returned by every mutating endpoint.
type TaskInfo struct {
	TaskUID    int64     `json:"taskUid"`
	IndexUID   string    `json:"indexUid"`
	Status     string    `json:"status"`
	Type       string    `json:"type"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Task is the polled state of an enqueued task.
type Task struct {
	UID        int64      `json:"uid"`
	IndexUID   string     `json:"indexUid"`
	Status     string     `json:"status"`
	Type       string     `json:"type"`
	Error      *TaskError `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// TaskError describes why a task failed.
type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

// Terminal reports whether the task will not change status anymore.
func (t Task) Terminal() bool {
	return terminal(t.Status)
}

func terminal(status string) bool {
	switch status {
	case TaskSucceeded, TaskFailed, TaskCanceled:
		return true
	default:
		return false
	}
}

// IndexInfo describes a remote index.
type IndexInfo struct {
	UID        string    `json:"uid"`
	PrimaryKey string    `json:"primaryKey"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Settings is the subset of index settings managed by registration.
// Nil displayed/searchable lists are replaced with ["*"] by UpdateSettings.
type Settings struct {
	DisplayedAttributes  []string `json:"displayedAttributes"`
	SearchableAttributes []string `json:"searchableAttributes"`
	FilterableAttributes []string `json:"filterableAttributes"`
	SortableAttributes   []string `json:"sortableAttributes"`
}

// Stats holds index statistics.
type Stats struct {
	NumberOfDocuments int64            `json:"numberOfDocuments"`
	IsIndexing        bool             `json:"isIndexing"`
	FieldDistribution map[string]int64 `json:"fieldDistribution,omitempty"`
}

// SearchRequest is the body of POST /indexes/{uid}/search.
type SearchRequest struct {
	Q                    string   `json:"q"`
	Offset               int      `json:"offset"`
	Limit                int      `json:"limit"`
	Filter               []string `json:"filter,omitempty"`
	Sort                 []string `json:"sort,omitempty"`
	MatchingStrategy     string   `json:"matchingStrategy,omitempty"`
	AttributesToSearchOn []string `json:"attributesToSearchOn,omitempty"`
}

// SearchResponse is the engine reply to a search request.
// Numbers inside hits are int64 when integral, float64 otherwise.
type SearchResponse struct {
	Hits               []map[string]any `json:"hits"`
	Query              string           `json:"query"`
	ProcessingTimeMs   int64            `json:"processingTimeMs"`
	Offset             int              `json:"offset"`
	Limit              int              `json:"limit"`
	EstimatedTotalHits int64            `json:"estimatedTotalHits"`
}

// Normalize converts json.Number values produced by a UseNumber decoder
// into int64 or float64, recursing into maps and slices.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = Normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = Normalize(e)
		}
		return t
	default:
		return v
	}
}
