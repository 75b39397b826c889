// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package rpc

import "encoding/json"

// Result is delivered exactly once to the caller waiting on a request.
type Result struct {
	Value json.RawMessage
	Err   error
}

// Table tracks requests awaiting a response on one connection. Ids start at 1
// and strictly increase. Table is not safe for concurrent use; the owner
// guards it.
type Table struct {
	next    int64
	pending map[int64]chan Result
}

// NewTable returns an empty table whose first id is 1.
func NewTable() *Table {
	return &Table{next: 1, pending: make(map[int64]chan Result)}
}

// Add allocates the next id and registers a buffered result channel for it.
func (t *Table) Add() (int64, <-chan Result) {
	id := t.next
	t.next++
	ch := make(chan Result, 1)
	t.pending[id] = ch
	return id, ch
}

// Resolve completes the request matching resp. It reports false for unknown
// or already completed ids.
func (t *Table) Resolve(resp *Response) bool {
	ch, ok := t.pending[resp.ID]
	if !ok {
		return false
	}
	delete(t.pending, resp.ID)
	if resp.Error != nil {
		ch <- Result{Err: resp.Error}
	} else {
		ch <- Result{Value: resp.Result}
	}
	return true
}

// Remove forgets id without completing it.
func (t *Table) Remove(id int64) {
	delete(t.pending, id)
}

// FailAll completes every outstanding request with err and empties the table.
// It returns the number of requests failed.
func (t *Table) FailAll(err error) int {
	n := len(t.pending)
	for id, ch := range t.pending {
		ch <- Result{Err: err}
		delete(t.pending, id)
	}
	return n
}

// Len returns the number of outstanding requests.
func (t *Table) Len() int {
	return len(t.pending)
}
