package signaling

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Notification is a message the registry decided a member must receive.
type Notification struct {
	To      string
	Message *protocol.Message
}

// JoinResult describes the outcome of a Join.
type JoinResult struct {
	Admitted      bool
	Snapshot      *protocol.RoomSnapshot
	Notifications []Notification
}

// LeaveResult describes the outcome of a Leave or Disconnect.
type LeaveResult struct {
	// Remaining lists the members still in the room after the departure.
	Remaining []string

	// Reclaimed is true when the room became empty and was deleted.
	Reclaimed     bool
	Notifications []Notification
}

// Registry is the single authority on room membership. Every method takes
// the registry lock, so membership changes and capacity checks are atomic.
type Registry struct {
	mu       sync.Mutex
	capacity int
	rooms    map[string]*Room

	// memberRoom maps a member to the room it currently occupies.
	memberRoom map[string]string
}

// NewRegistry creates a registry whose rooms admit at most capacity members.
// A capacity below 1 falls back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity:   capacity,
		rooms:      make(map[string]*Room),
		memberRoom: make(map[string]string),
	}
}

// Capacity returns the per-room member limit.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Join admits memberID into roomID if the room has space, creating the room
// on first join. On admission the joiner is told "joined" and every other
// member "other-join". A full room yields ErrRoomFull and a "full"
// notification for the joiner only.
func (r *Registry) Join(roomID, memberID string) (JoinResult, error) {
	if roomID == "" {
		return JoinResult{}, ErrInvalidRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.memberRoom[memberID]; ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyInRoom, current)
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoom(roomID, r.capacity)
	}

	if room.full() {
		snap := room.snapshot()
		return JoinResult{
			Snapshot: snap,
			Notifications: []Notification{{
				To:      memberID,
				Message: &protocol.Message{Type: protocol.TypeFull, RoomID: roomID, Room: snap},
			}},
		}, ErrRoomFull
	}

	room.add(memberID)
	r.rooms[roomID] = room
	r.memberRoom[memberID] = roomID

	snap := room.snapshot()
	others := room.others(memberID)
	notes := make([]Notification, 0, len(others)+1)
	for _, other := range others {
		notes = append(notes, Notification{
			To: other,
			Message: &protocol.Message{
				Type:     protocol.TypeOtherJoin,
				RoomID:   roomID,
				MemberID: memberID,
				Room:     room.snapshot(),
			},
		})
	}
	notes = append(notes, Notification{
		To:      memberID,
		Message: &protocol.Message{Type: protocol.TypeJoined, RoomID: roomID, MemberID: memberID, Room: snap},
	})

	return JoinResult{Admitted: true, Snapshot: snap, Notifications: notes}, nil
}

// Leave removes memberID from roomID. The leaver is always acknowledged with
// "leaved"; each remaining member receives one "bye". ErrNotMember is
// returned alongside the acknowledgement when the member was not in the room.
func (r *Registry) Leave(roomID, memberID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ack := Notification{
		To:      memberID,
		Message: &protocol.Message{Type: protocol.TypeLeaved, RoomID: roomID},
	}

	if r.memberRoom[memberID] != roomID {
		return LeaveResult{Notifications: []Notification{ack}}, ErrNotMember
	}

	res := r.removeLocked(roomID, memberID)
	res.Notifications = append([]Notification{ack}, res.Notifications...)
	return res, nil
}

// Disconnect is an implicit leave from the member's last known room, if any.
// The departed member is not notified.
func (r *Registry) Disconnect(memberID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberRoom[memberID]
	if !ok {
		return LeaveResult{}
	}
	return r.removeLocked(roomID, memberID)
}

func (r *Registry) removeLocked(roomID, memberID string) LeaveResult {
	delete(r.memberRoom, memberID)

	room, ok := r.rooms[roomID]
	if !ok || !room.remove(memberID) {
		return LeaveResult{}
	}

	if len(room.members) == 0 {
		delete(r.rooms, roomID)
		return LeaveResult{Reclaimed: true}
	}

	remaining := room.others(memberID)
	notes := make([]Notification, 0, len(remaining))
	for _, other := range remaining {
		notes = append(notes, Notification{
			To: other,
			Message: &protocol.Message{
				Type:     protocol.TypeBye,
				RoomID:   roomID,
				MemberID: memberID,
				Room:     room.snapshot(),
			},
		})
	}
	return LeaveResult{Remaining: remaining, Notifications: notes}
}

// Members returns the members of roomID. ok is false if the room does not exist.
func (r *Registry) Members(roomID string) (members []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.others(""), true
}

// RoomOf returns the room memberID is in, or "".
func (r *Registry) RoomOf(memberID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberRoom[memberID]
}

// Snapshot returns a copy of roomID's membership.
func (r *Registry) Snapshot(roomID string) (*protocol.RoomSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.snapshot(), true
}

// Snapshots returns every live room ordered by id.
func (r *Registry) Snapshots() []*protocol.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*protocol.RoomSnapshot, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the number of live rooms and members.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.memberRoom)
}
