package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Bid(t *testing.T) {
	raw := []byte(`{
		"type": "bid",
		"requestId": "req-1",
		"sender": "acct-analyst",
		"role": "analyst",
		"price": 45,
		"pitch": "deep dive on the methodology",
		"timestamp": "2026-02-10T12:00:00Z"
	}`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeBid, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.Equal(t, "acct-analyst", msg.Sender)
	assert.Equal(t, RoleAnalyst, msg.Role)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC), msg.Timestamp)

	var bid Bid
	require.NoError(t, msg.Decode(&bid))
	assert.Equal(t, int64(45), bid.Price)
	assert.Equal(t, "deep dive on the methodology", bid.Pitch)
}

func TestParse_NoRoleField(t *testing.T) {
	raw := []byte(`{"type":"course_request","requestId":"req-2","sender":"requester","paperUrl":"u","budget":100}`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeCourseRequest, msg.Type)
	assert.Empty(t, msg.Role)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json at all"},
		{"empty object", "{}"},
		{"missing type", `{"requestId":"req-3","sender":"x"}`},
		{"json array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	rel := EscrowRelease{
		Envelope: Envelope{
			Type:      TypeEscrowRelease,
			RequestID: "req-4",
			Sender:    "server",
			Timestamp: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		},
		ToAccount: "acct-architect",
		Role:      RoleArchitect,
		Amount:    40,
		TxID:      "tx-9",
	}

	data, err := Marshal(rel)
	require.NoError(t, err)

	msg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, TypeEscrowRelease, msg.Type)
	assert.Equal(t, RoleArchitect, msg.Role)

	var decoded EscrowRelease
	require.NoError(t, msg.Decode(&decoded))
	assert.Equal(t, rel, decoded)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleAnalyst.Valid())
	assert.True(t, RoleArchitect.Valid())
	assert.False(t, Role("scholar").Valid())
	assert.False(t, Role("").Valid())
}
