// Package registry tracks live connections, their pre-match attributes, and
// the reverse index from connection handle to the session it occupies.
//
// The two maps have different lifetimes: attributes live exactly as long as
// the transport connection, while a session binding survives a disconnect
// until the slot is remapped by a rejoin or the session is torn down.
package registry

import "time"

// Attributes are the mutable per-connection settings chosen before queueing
type Attributes struct {
	DisplayName    string
	Mode           string
	ReferenceImage string
	ConnectedAt    time.Time
}

// Registry is owned by the coordinator loop and is not safe for concurrent use
type Registry struct {
	conns map[string]*Attributes
	rooms map[string]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		conns: make(map[string]*Attributes),
		rooms: make(map[string]string),
	}
}

// Add registers a live connection
func (r *Registry) Add(connID string, now time.Time) {
	if _, ok := r.conns[connID]; ok {
		return
	}
	r.conns[connID] = &Attributes{ConnectedAt: now}
}

// Remove forgets a connection's attributes. Its session binding, if any, is kept.
func (r *Registry) Remove(connID string) {
	delete(r.conns, connID)
}

// Live reports whether connID is a connected transport
func (r *Registry) Live(connID string) bool {
	_, ok := r.conns[connID]
	return ok
}

// Get returns the attributes of a live connection
func (r *Registry) Get(connID string) (Attributes, bool) {
	a, ok := r.conns[connID]
	if !ok {
		return Attributes{}, false
	}
	return *a, true
}

// SetProfile records display name and mode preference
func (r *Registry) SetProfile(connID, displayName, mode string) {
	if a, ok := r.conns[connID]; ok {
		a.DisplayName = displayName
		a.Mode = mode
	}
}

// SetReferenceImage buffers an artifact submitted before the connection has a session
func (r *Registry) SetReferenceImage(connID, artifact string) {
	if a, ok := r.conns[connID]; ok {
		a.ReferenceImage = artifact
	}
}

// TakeReferenceImage returns and clears the buffered artifact
func (r *Registry) TakeReferenceImage(connID string) string {
	a, ok := r.conns[connID]
	if !ok {
		return ""
	}
	img := a.ReferenceImage
	a.ReferenceImage = ""
	return img
}

// Len is the number of live connections
func (r *Registry) Len() int {
	return len(r.conns)
}

// Bind records that connID occupies a slot in roomID
func (r *Registry) Bind(connID, roomID string) {
	r.rooms[connID] = roomID
}

// Unbind removes connID from the reverse index
func (r *Registry) Unbind(connID string) {
	delete(r.rooms, connID)
}

// RoomOf returns the session connID occupies
func (r *Registry) RoomOf(connID string) (string, bool) {
	id, ok := r.rooms[connID]
	return id, ok
}

// Rebind moves oldID's binding to newID. It reports false if oldID was not bound.
func (r *Registry) Rebind(oldID, newID string) bool {
	roomID, ok := r.rooms[oldID]
	if !ok {
		return false
	}
	delete(r.rooms, oldID)
	r.rooms[newID] = roomID
	return true
}

// Bound is the number of connection handles currently bound to a session
func (r *Registry) Bound() int {
	return len(r.rooms)
}
