package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

type recordingOutbox struct {
	got    map[string][]*protocol.Message
	refuse map[string]bool
}

func newRecordingOutbox() *recordingOutbox {
	return &recordingOutbox{got: make(map[string][]*protocol.Message), refuse: make(map[string]bool)}
}

func (o *recordingOutbox) Deliver(memberID string, msg *protocol.Message) bool {
	if o.refuse[memberID] {
		return false
	}
	o.got[memberID] = append(o.got[memberID], msg)
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelay_DeliversToOthersUnchanged(t *testing.T) {
	reg := NewRegistry(3)
	for _, m := range []string{"A", "B", "C"} {
		_, err := reg.Join("r1", m)
		require.NoError(t, err)
	}

	out := newRecordingOutbox()
	metrics := NewMetrics(prometheus.NewRegistry())
	relay := NewRelay(reg, out, discardLogger(), metrics)

	payload := json.RawMessage(`{"type":"something-the-relay-does-not-know","x":[1,2,3]}`)
	n := relay.Relay("r1", "A", payload)

	assert.Equal(t, 2, n)
	assert.Empty(t, out.got["A"])
	for _, m := range []string{"B", "C"} {
		require.Len(t, out.got[m], 1)
		msg := out.got[m][0]
		assert.Equal(t, protocol.TypeMessage, msg.Type)
		assert.Equal(t, "A", msg.From)
		assert.Equal(t, string(payload), string(msg.Payload))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Relayed))
}

func TestRelay_SilentNoOps(t *testing.T) {
	reg := NewRegistry(2)
	_, err := reg.Join("alone", "A")
	require.NoError(t, err)
	_, err = reg.Join("pair", "B")
	require.NoError(t, err)
	_, err = reg.Join("pair", "C")
	require.NoError(t, err)

	out := newRecordingOutbox()
	metrics := NewMetrics(prometheus.NewRegistry())
	relay := NewRelay(reg, out, discardLogger(), metrics)
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	assert.Zero(t, relay.Relay("missing", "A", payload))
	assert.Zero(t, relay.Relay("alone", "A", payload))
	assert.Zero(t, relay.Relay("pair", "A", payload))
	assert.Empty(t, out.got)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RelayDropped.WithLabelValues(DropNoRoom)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RelayDropped.WithLabelValues(DropNoPeer)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RelayDropped.WithLabelValues(DropNotMember)))
}

func TestRelay_SlowPeerDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry(3)
	for _, m := range []string{"A", "B", "C"} {
		_, err := reg.Join("r1", m)
		require.NoError(t, err)
	}

	out := newRecordingOutbox()
	out.refuse["B"] = true
	relay := NewRelay(reg, out, discardLogger(), nil)

	assert.Equal(t, 1, relay.Relay("r1", "A", json.RawMessage(`{}`)))
	assert.Len(t, out.got["C"], 1)
}
