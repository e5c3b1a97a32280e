package signaling

import (
	"slices"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// DefaultCapacity is the number of members a room admits unless configured otherwise.
const DefaultCapacity = 2

// Room is a capacity-bounded set of members. Rooms are owned by a Registry
// and are not safe for use on their own.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// members holds member ids in admission order.
	members []string

	capacity int
}

func newRoom(id string, capacity int) *Room {
	return &Room{ID: id, capacity: capacity, members: make([]string, 0, capacity)}
}

func (r *Room) has(memberID string) bool {
	return slices.Contains(r.members, memberID)
}

func (r *Room) full() bool {
	return len(r.members) >= r.capacity
}

func (r *Room) add(memberID string) {
	r.members = append(r.members, memberID)
}

func (r *Room) remove(memberID string) bool {
	i := slices.Index(r.members, memberID)
	if i < 0 {
		return false
	}
	r.members = slices.Delete(r.members, i, i+1)
	return true
}

// others returns every member except memberID.
func (r *Room) others(memberID string) []string {
	out := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if m != memberID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) snapshot() *protocol.RoomSnapshot {
	return &protocol.RoomSnapshot{
		ID:       r.ID,
		Members:  slices.Clone(r.members),
		Capacity: r.capacity,
	}
}
