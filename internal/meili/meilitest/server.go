// Package meilitest provides an in-memory Meilisearch engine for tests.
// Tasks are processed at enqueue time, so polling always finds them terminal.
package meilitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/meilisync/internal/meili"
)

// Request is a recorded incoming request.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

type index struct {
	info     meili.IndexInfo
	settings meili.Settings
	docs     map[string]map[string]any
	order    []string
}

type failure struct {
	code    string
	message string
}

// Server is a fake engine served over httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	masterKey string
	indexes   map[string]*index
	tasks     map[int64]*meili.Task
	nextTask  int64
	requests  []Request
	failNext  map[string]failure
}

// Option configures the fake engine.
type Option func(*Server)

// WithMasterKey requires `Authorization: Bearer <key>` on every route but /health.
func WithMasterKey(key string) Option {
	return func(s *Server) { s.masterKey = key }
}

// NewServer starts the fake engine. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		indexes:  make(map[string]*index),
		tasks:    make(map[int64]*meili.Task),
		failNext: make(map[string]failure),
	}
	for _, o := range opts {
		o(s)
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.auth)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "available"})
	})
	r.Get("/tasks/{uid}", s.getTask)
	r.Route("/indexes", func(r chi.Router) {
		r.Get("/", s.listIndexes)
		r.Post("/", s.createIndex)
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", s.getIndex)
			r.Delete("/", s.deleteIndex)
			r.Patch("/settings", s.updateSettings)
			r.Put("/settings/{setting}", s.updateSetting)
			r.Post("/documents", s.addDocuments)
			r.Delete("/documents", s.deleteAllDocuments)
			r.Delete("/documents/{id}", s.deleteDocument)
			r.Get("/stats", s.stats)
			r.Post("/search", s.search)
		})
	})
	return r
}

// FailNext makes the next task of the given type fail with code.
// Types: indexCreation, settingsUpdate, documentAdditionOrUpdate,
// documentDeletion, indexDeletion.
func (s *Server) FailNext(taskType, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[taskType] = failure{code: code, message: message}
}

// Requests returns a copy of every recorded request.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns recorded requests matching method and path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Documents returns the documents of an index in insertion order.
func (s *Server) Documents(uid string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[uid]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, cloneDoc(idx.docs[id]))
	}
	return out
}

// Document returns one document by id.
func (s *Server) Document(uid, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[uid]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return cloneDoc(doc), true
}

// Index returns the index description and its settings.
func (s *Server) Index(uid string) (meili.IndexInfo, meili.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[uid]
	if !ok {
		return meili.IndexInfo{}, meili.Settings{}, false
	}
	return idx.info, idx.settings, true
}

// Tasks returns every task in enqueue order.
func (s *Server) Tasks() []meili.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]meili.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.masterKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		if authz == "" {
			writeError(w, http.StatusUnauthorized, "missing_authorization_header", "The Authorization header is missing.")
			return
		}
		if authz != "Bearer "+s.masterKey {
			writeError(w, http.StatusForbidden, "invalid_api_key", "The provided API key is invalid.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// enqueue records a task and runs apply under the lock. apply returns a
// task error code and message, or empty strings on success.
func (s *Server) enqueue(uid, taskType string, apply func() (string, string)) meili.TaskInfo {
	s.nextTask++
	now := time.Now().UTC()
	task := &meili.Task{
		UID:        s.nextTask,
		IndexUID:   uid,
		Type:       taskType,
		Status:     meili.TaskSucceeded,
		EnqueuedAt: now,
		FinishedAt: &now,
	}

	if f, ok := s.failNext[taskType]; ok {
		delete(s.failNext, taskType)
		task.Status = meili.TaskFailed
		task.Error = &meili.TaskError{Code: f.code, Message: f.message, Type: "invalid_request"}
	} else if code, msg := apply(); code != "" {
		task.Status = meili.TaskFailed
		task.Error = &meili.TaskError{Code: code, Message: msg, Type: "invalid_request"}
	}
	s.tasks[task.UID] = task

	return meili.TaskInfo{
		TaskUID:    task.UID,
		IndexUID:   uid,
		Status:     meili.TaskEnqueued,
		Type:       taskType,
		EnqueuedAt: now,
	}
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseInt(chi.URLParam(r, "uid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_task_uids", err.Error())
		return
	}
	s.mu.Lock()
	task, ok := s.tasks[uid]
	var out meili.Task
	if ok {
		out = *task
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "task_not_found", fmt.Sprintf("Task `%d` not found.", uid))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listIndexes(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	all := make([]meili.IndexInfo, 0, len(s.indexes))
	for _, idx := range s.indexes {
		all = append(all, idx.info)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].UID < all[j].UID })

	page := window(all, offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": page,
		"offset":  offset,
		"limit":   limit,
		"total":   len(all),
	})
}

func (s *Server) createIndex(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID        string `json:"uid"`
		PrimaryKey string `json:"primaryKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UID == "" {
		writeError(w, http.StatusBadRequest, "missing_index_uid", "`uid` is missing.")
		return
	}

	s.mu.Lock()
	info := s.enqueue(body.UID, "indexCreation", func() (string, string) {
		if _, ok := s.indexes[body.UID]; ok {
			return "index_already_exists", fmt.Sprintf("Index `%s` already exists.", body.UID)
		}
		s.newIndex(body.UID, body.PrimaryKey)
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) newIndex(uid, primaryKey string) *index {
	now := time.Now().UTC()
	idx := &index{
		info: meili.IndexInfo{UID: uid, PrimaryKey: primaryKey, CreatedAt: now, UpdatedAt: now},
		settings: meili.Settings{
			DisplayedAttributes:  []string{"*"},
			SearchableAttributes: []string{"*"},
			FilterableAttributes: []string{},
			SortableAttributes:   []string{},
		},
		docs: make(map[string]map[string]any),
	}
	s.indexes[uid] = idx
	return idx
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*index, string, bool) {
	uid := chi.URLParam(r, "uid")
	idx, ok := s.indexes[uid]
	if !ok {
		writeError(w, http.StatusNotFound, "index_not_found", fmt.Sprintf("Index `%s` not found.", uid))
	}
	return idx, uid, ok
}

func (s *Server) getIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx, _, ok := s.lookup(w, r)
	var info meili.IndexInfo
	if ok {
		info = idx.info
	}
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) deleteIndex(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	s.mu.Lock()
	info := s.enqueue(uid, "indexDeletion", func() (string, string) {
		if _, ok := s.indexes[uid]; !ok {
			return "index_not_found", fmt.Sprintf("Index `%s` not found.", uid)
		}
		delete(s.indexes, uid)
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body meili.Settings
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	info := s.enqueue(uid, "settingsUpdate", func() (string, string) {
		idx, ok := s.indexes[uid]
		if !ok {
			idx = s.newIndex(uid, "")
		}
		if body.DisplayedAttributes != nil {
			idx.settings.DisplayedAttributes = body.DisplayedAttributes
		}
		if body.SearchableAttributes != nil {
			idx.settings.SearchableAttributes = body.SearchableAttributes
		}
		if body.FilterableAttributes != nil {
			idx.settings.FilterableAttributes = body.FilterableAttributes
		}
		if body.SortableAttributes != nil {
			idx.settings.SortableAttributes = body.SortableAttributes
		}
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) updateSetting(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	setting := chi.URLParam(r, "setting")
	var attrs []string
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[uid]; !ok {
		s.newIndex(uid, "")
	}
	st := &s.indexes[uid].settings
	var target *[]string
	switch setting {
	case "displayed-attributes":
		target = &st.DisplayedAttributes
	case "searchable-attributes":
		target = &st.SearchableAttributes
	case "filterable-attributes":
		target = &st.FilterableAttributes
	case "sortable-attributes":
		target = &st.SortableAttributes
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown setting "+setting)
		return
	}
	info := s.enqueue(uid, "settingsUpdate", func() (string, string) {
		*target = attrs
		return "", ""
	})
	writeJSON(w, http.StatusAccepted, info)
}

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,511}$`)

func (s *Server) addDocuments(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var raw []map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_payload", err.Error())
		return
	}
	for _, d := range raw {
		meili.Normalize(d)
	}

	s.mu.Lock()
	info := s.enqueue(uid, "documentAdditionOrUpdate", func() (string, string) {
		idx, ok := s.indexes[uid]
		if !ok {
			idx = s.newIndex(uid, r.URL.Query().Get("primaryKey"))
		}
		if idx.info.PrimaryKey == "" {
			pk, found := inferPrimaryKey(raw)
			if !found {
				return "index_primary_key_no_candidate_found", "The primary key inference failed."
			}
			idx.info.PrimaryKey = pk
		}
		pk := idx.info.PrimaryKey

		ids := make([]string, len(raw))
		for i, d := range raw {
			v, ok := d[pk]
			if !ok || v == nil {
				return "missing_document_id", fmt.Sprintf("Document doesn't have a `%s` attribute: `%v`.", pk, d)
			}
			id, ok := documentID(v)
			if !ok {
				return "invalid_document_id", fmt.Sprintf("Document identifier `%v` is invalid.", v)
			}
			ids[i] = id
		}
		for i, d := range raw {
			if _, exists := idx.docs[ids[i]]; !exists {
				idx.order = append(idx.order, ids[i])
			}
			idx.docs[ids[i]] = d
		}
		idx.info.UpdatedAt = time.Now().UTC()
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func inferPrimaryKey(docs []map[string]any) (string, bool) {
	if len(docs) == 0 {
		return "", false
	}
	var candidates []string
	for k := range docs[0] {
		if strings.HasSuffix(strings.ToLower(k), "id") {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0], true
}

func documentID(v any) (string, bool) {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		if t != float64(int64(t)) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case string:
		return t, validID.MatchString(t)
	default:
		return "", false
	}
}

func (s *Server) deleteAllDocuments(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	s.mu.Lock()
	info := s.enqueue(uid, "documentDeletion", func() (string, string) {
		idx, ok := s.indexes[uid]
		if !ok {
			return "index_not_found", fmt.Sprintf("Index `%s` not found.", uid)
		}
		idx.docs = make(map[string]map[string]any)
		idx.order = nil
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_document_id", err.Error())
		return
	}
	s.mu.Lock()
	info := s.enqueue(uid, "documentDeletion", func() (string, string) {
		idx, ok := s.indexes[uid]
		if !ok {
			return "index_not_found", fmt.Sprintf("Index `%s` not found.", uid)
		}
		if _, ok := idx.docs[id]; ok {
			delete(idx.docs, id)
			for i, o := range idx.order {
				if o == id {
					idx.order = append(idx.order[:i], idx.order[i+1:]...)
					break
				}
			}
		}
		return "", ""
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx, _, ok := s.lookup(w, r)
	var st meili.Stats
	if ok {
		st.NumberOfDocuments = int64(len(idx.docs))
		st.FieldDistribution = make(map[string]int64)
		for _, d := range idx.docs {
			for k := range d {
				st.FieldDistribution[k]++
			}
		}
	}
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req meili.SearchRequest
	req.Limit = 20
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	idx, _, ok := s.lookup(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	docs := make([]map[string]any, 0, len(idx.order))
	for _, id := range idx.order {
		docs = append(docs, cloneDoc(idx.docs[id]))
	}
	settings := idx.settings
	s.mu.Unlock()

	hits, err := runSearch(docs, settings, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.code, err.msg)
		return
	}
	total := len(hits)
	writeJSON(w, http.StatusOK, meili.SearchResponse{
		Hits:               window(hits, req.Offset, req.Limit),
		Query:              req.Q,
		Offset:             req.Offset,
		Limit:              req.Limit,
		EstimatedTotalHits: int64(total),
	})
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneDoc(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"message": message,
		"code":    code,
		"type":    "invalid_request",
		"link":    "https://docs.meilisearch.com/errors#" + code,
	})
}
