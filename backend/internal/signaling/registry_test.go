package signaling

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// notesFor returns the message types addressed to member, in order.
func notesFor(notes []Notification, member string) []string {
	var out []string
	for _, n := range notes {
		if n.To == member {
			out = append(out, n.Message.Type)
		}
	}
	return out
}

func TestRegistry_JoinOrdering(t *testing.T) {
	r := NewRegistry(3)

	res, err := r.Join("r1", "A")
	require.NoError(t, err)
	assert.True(t, res.Admitted)
	assert.Equal(t, []string{protocol.TypeJoined}, notesFor(res.Notifications, "A"))
	assert.Len(t, res.Notifications, 1)

	res, err = r.Join("r1", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.TypeOtherJoin}, notesFor(res.Notifications, "A"))
	assert.Equal(t, []string{protocol.TypeJoined}, notesFor(res.Notifications, "B"))

	res, err = r.Join("r1", "C")
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.TypeOtherJoin}, notesFor(res.Notifications, "A"))
	assert.Equal(t, []string{protocol.TypeOtherJoin}, notesFor(res.Notifications, "B"))
	assert.Equal(t, []string{protocol.TypeJoined}, notesFor(res.Notifications, "C"))
	assert.Equal(t, []string{"A", "B", "C"}, res.Snapshot.Members)

	for _, n := range res.Notifications {
		if n.Message.Type == protocol.TypeOtherJoin {
			assert.Equal(t, "C", n.Message.MemberID)
		}
	}

	res, err = r.Join("r1", "D")
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.False(t, res.Admitted)
	assert.Equal(t, []string{protocol.TypeFull}, notesFor(res.Notifications, "D"))
	assert.Len(t, res.Notifications, 1)
	assert.Equal(t, "", r.RoomOf("D"))

	members, ok := r.Members("r1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, members)
}

func TestRegistry_JoinedCarriesOwnID(t *testing.T) {
	r := NewRegistry(2)
	res, err := r.Join("r1", "A")
	require.NoError(t, err)

	msg := res.Notifications[0].Message
	assert.Equal(t, "A", msg.MemberID)
	assert.Equal(t, "r1", msg.Room.ID)
	assert.Equal(t, 2, msg.Room.Capacity)
}

func TestRegistry_RejectsSecondRoomAndEmptyID(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Join("r1", "A")
	require.NoError(t, err)

	_, err = r.Join("r2", "A")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = r.Join("r1", "A")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = r.Join("", "B")
	assert.ErrorIs(t, err, ErrInvalidRoomID)

	_, ok := r.Members("r2")
	assert.False(t, ok)
}

func TestRegistry_LeaveSymmetry(t *testing.T) {
	r := NewRegistry(3)
	for _, m := range []string{"A", "B", "C"} {
		_, err := r.Join("r1", m)
		require.NoError(t, err)
	}

	res, err := r.Leave("r1", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.TypeLeaved}, notesFor(res.Notifications, "B"))
	assert.Equal(t, []string{protocol.TypeBye}, notesFor(res.Notifications, "A"))
	assert.Equal(t, []string{protocol.TypeBye}, notesFor(res.Notifications, "C"))
	assert.Len(t, res.Notifications, 3)
	assert.ElementsMatch(t, []string{"A", "C"}, res.Remaining)

	for _, n := range res.Notifications {
		if n.Message.Type == protocol.TypeBye {
			assert.Equal(t, "B", n.Message.MemberID)
			assert.Equal(t, []string{"A", "C"}, n.Message.Room.Members)
		}
	}
	assert.Equal(t, "", r.RoomOf("B"))
}

func TestRegistry_LeaveNotMemberStillAcknowledges(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Join("r1", "A")
	require.NoError(t, err)

	res, err := r.Leave("r1", "Z")
	assert.ErrorIs(t, err, ErrNotMember)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "Z", res.Notifications[0].To)
	assert.Equal(t, protocol.TypeLeaved, res.Notifications[0].Message.Type)

	members, _ := r.Members("r1")
	assert.Equal(t, []string{"A"}, members)
}

func TestRegistry_EmptyRoomIsReclaimed(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Join("r1", "A")
	require.NoError(t, err)

	res, err := r.Leave("r1", "A")
	require.NoError(t, err)
	assert.True(t, res.Reclaimed)

	_, ok := r.Members("r1")
	assert.False(t, ok)
	rooms, members := r.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, members)
}

func TestRegistry_DisconnectIsImplicitLeave(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Join("r1", "A")
	require.NoError(t, err)
	_, err = r.Join("r1", "B")
	require.NoError(t, err)

	res := r.Disconnect("B")
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "A", res.Notifications[0].To)
	assert.Equal(t, protocol.TypeBye, res.Notifications[0].Message.Type)

	assert.Empty(t, r.Disconnect("B").Notifications)
	assert.Empty(t, r.Disconnect("never-joined").Notifications)

	// The freed seat can be taken again.
	_, err = r.Join("r1", "C")
	require.NoError(t, err)
}

func TestRegistry_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			r := NewRegistry(capacity)
			const rooms, joiners = 20, 16

			var admitted [rooms]atomic.Int32
			var wg sync.WaitGroup
			for room := 0; room < rooms; room++ {
				for j := 0; j < joiners; j++ {
					wg.Add(1)
					go func(room, j int) {
						defer wg.Done()
						_, err := r.Join(fmt.Sprintf("room-%d", room), fmt.Sprintf("m-%d-%d", room, j))
						if err == nil {
							admitted[room].Add(1)
						} else {
							assert.ErrorIs(t, err, ErrRoomFull)
						}
					}(room, j)
				}
			}
			wg.Wait()

			for room := 0; room < rooms; room++ {
				assert.EqualValues(t, capacity, admitted[room].Load())
				members, ok := r.Members(fmt.Sprintf("room-%d", room))
				require.True(t, ok)
				assert.Len(t, members, capacity)
			}
		})
	}
}

func TestRegistry_ChurnKeepsInvariant(t *testing.T) {
	r := NewRegistry(2)
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			member := fmt.Sprintf("m%d", w)
			for i := 0; i < 500; i++ {
				room := fmt.Sprintf("r%d", rng.Intn(3))
				switch rng.Intn(3) {
				case 0:
					_, _ = r.Join(room, member)
				case 1:
					_, _ = r.Leave(r.RoomOf(member), member)
				default:
					_ = r.Disconnect(member)
				}
				for _, snap := range r.Snapshots() {
					assert.LessOrEqual(t, len(snap.Members), 2)
					assert.NotEmpty(t, snap.Members)
				}
			}
		}(w)
	}
	wg.Wait()
}
