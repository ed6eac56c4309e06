// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package requester

import (
	"sync"

	"github.com/iot-dsa/dslink-go/pkg/protocol"
)

// record of an in-flight request.
type record interface {
	// handle a response for this request's RID.
	// True is returned when the request has ended.
	handle(resp *protocol.Response) bool

	// fail terminates this request locally.
	fail(err error)
}

// RequestTracker assigns RIDs, strictly increasing from 1, and stores the
// in-flight requests by their RID.
type RequestTracker struct {
	mutex   sync.Mutex
	nextRid int32
	records map[int32]record
}

// NewRequestTracker with its first RID being 1.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		nextRid: 1,
		records: make(map[int32]record),
	}
}

// track stores a record under the next RID.
func (rt *RequestTracker) track(rec record) int32 {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	rid := rt.nextRid
	rt.nextRid++
	rt.records[rid] = rec
	return rid
}

// NextRid peeks the RID of the next request.
func (rt *RequestTracker) NextRid() int32 {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.nextRid
}

func (rt *RequestTracker) get(rid int32) record {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.records[rid]
}

// IsTracking checks if a request is still in flight.
func (rt *RequestTracker) IsTracking(rid int32) bool {
	return rt.get(rid) != nil
}

// Untrack a request, e.g., after its closing response.
func (rt *RequestTracker) Untrack(rid int32) {
	rt.mutex.Lock()
	delete(rt.records, rid)
	rt.mutex.Unlock()
}

// Count of in-flight requests.
func (rt *RequestTracker) Count() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return len(rt.records)
}

// reset drops all records and restarts the RIDs at 1.
func (rt *RequestTracker) reset() (records []record) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	for _, rec := range rt.records {
		records = append(records, rec)
	}
	rt.records = make(map[int32]record)
	rt.nextRid = 1
	return
}
