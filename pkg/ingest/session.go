package ingest

import (
	"sort"
	"sync"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// SessionRegistry tracks documents by session and which one is live.
// A session carries one live document at a time: activating a new
// upload supersedes every prior document in the session. Superseded
// documents stay in the registry and keep their vectors, so they remain
// reachable by document id, but session-scoped searches exclude them.
//
// The registry is in-memory: sessions are ephemeral and a restart
// simply starts with no sessions, while vectors persist in the store
// keyed by document id.
type SessionRegistry struct {
	mu     sync.RWMutex
	docs   map[string]*rag.Document
	active map[string]string // session id -> live document id
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		docs:   make(map[string]*rag.Document),
		active: make(map[string]string),
	}
}

// Register adds a document in its initial state.
func (r *SessionRegistry) Register(doc *rag.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
}

// Update applies fn to the stored document under the registry lock.
func (r *SessionRegistry) Update(documentID string, fn func(*rag.Document)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[documentID]; ok {
		fn(doc)
	}
}

// Get returns a copy of the document, if registered.
func (r *SessionRegistry) Get(documentID string) (rag.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return rag.Document{}, false
	}
	return *doc, true
}

// Documents returns copies of all documents in a session.
func (r *SessionRegistry) Documents(sessionID string) []rag.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var docs []rag.Document
	for _, doc := range r.docs {
		if doc.SessionID == sessionID {
			docs = append(docs, *doc)
		}
	}
	return docs
}

// Activate marks the document as its session's live document and
// supersedes every other document in the session. It returns the ids
// of the newly superseded documents, empty when this is the session's
// first upload or a re-activation.
func (r *SessionRegistry) Activate(documentID string) (superseded []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[documentID]
	if !ok {
		return nil
	}
	r.active[doc.SessionID] = documentID
	doc.Superseded = false

	for id, other := range r.docs {
		if id == documentID || other.SessionID != doc.SessionID || other.Superseded {
			continue
		}
		other.Superseded = true
		superseded = append(superseded, id)
	}
	sort.Strings(superseded)
	return superseded
}

// Active returns the session's live document.
func (r *SessionRegistry) Active(sessionID string) (rag.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[sessionID]
	if !ok {
		return rag.Document{}, false
	}
	doc, ok := r.docs[id]
	if !ok {
		return rag.Document{}, false
	}
	return *doc, true
}

// Superseded returns the ids of the session's superseded documents, in
// stable order. Session-scoped searches exclude them.
func (r *SessionRegistry) Superseded(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, doc := range r.docs {
		if doc.SessionID == sessionID && doc.Superseded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Remove forgets a document. The caller owns removing its vectors.
func (r *SessionRegistry) Remove(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return
	}
	if r.active[doc.SessionID] == documentID {
		delete(r.active, doc.SessionID)
	}
	delete(r.docs, documentID)
}

// ClearSession forgets every document in a session and returns their
// ids so the caller can purge the vector store.
func (r *SessionRegistry) ClearSession(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, doc := range r.docs {
		if doc.SessionID != sessionID {
			continue
		}
		delete(r.docs, id)
		removed = append(removed, id)
	}
	delete(r.active, sessionID)
	return removed
}
