package raven_transport

import (
	"net/http"
	"time"
)

// pendingRequest is one logical delivery. It survives redirects unchanged
// except for url and hops.
type pendingRequest struct {
	id        uint64
	body      []byte
	header    http.Header
	url       string
	hops      int
	submitted time.Time
}

// PendingTable maps request ids to in-flight deliveries. An id is present
// exactly while a transport operation for it is outstanding.
// It is not safe for concurrent use; the Dispatcher guards it.
type PendingTable struct {
	nextID  uint64
	entries map[uint64]*pendingRequest
}

// NewPendingTable creates an empty table
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: make(map[uint64]*pendingRequest),
	}
}

// NextID returns a new id, strictly greater than every id handed out before
func (t *PendingTable) NextID() uint64 {
	t.nextID++
	return t.nextID
}

// Insert registers a new in-flight request. It reports false if the id is already tracked.
func (t *PendingTable) Insert(req *pendingRequest) bool {
	if _, exists := t.entries[req.id]; exists {
		return false
	}
	t.entries[req.id] = req
	return true
}

// Remove deregisters a request. It reports false if the id was not tracked.
func (t *PendingTable) Remove(id uint64) bool {
	if _, exists := t.entries[id]; !exists {
		return false
	}
	delete(t.entries, id)
	return true
}

// Lookup returns the request tracked under id
func (t *PendingTable) Lookup(id uint64) (*pendingRequest, bool) {
	req, ok := t.entries[id]
	return req, ok
}

func (t *PendingTable) Len() int {
	return len(t.entries)
}

func (t *PendingTable) Empty() bool {
	return len(t.entries) == 0
}
