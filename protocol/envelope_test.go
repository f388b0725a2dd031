package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	frame, err := Encode(HeaderSession, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"header":"session","data":"u1"}`, string(frame))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		header  string
		wantErr error
	}{
		{name: "valid", frame: `{"header":"join","data":{"id":"a","room_id":"b"}}`, header: HeaderJoin},
		{name: "surrounding whitespace", frame: "  {\"header\":\"read\",\"data\":[]}\n", header: HeaderRead},
		{name: "not json", frame: `hello`, wantErr: ErrMalformedEnvelope},
		{name: "missing header", frame: `{"data":1}`, wantErr: ErrMalformedEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.header, env.Header)
		})
	}
}

func TestEnvelopeBind(t *testing.T) {
	env, err := Decode([]byte(`{"header":"join","data":{"id":"a","room_id":"b"}}`))
	require.NoError(t, err)

	var join struct {
		ID     string `json:"id"`
		RoomID string `json:"room_id"`
	}
	require.NoError(t, env.Bind(&join))
	assert.Equal(t, "a", join.ID)
	assert.Equal(t, "b", join.RoomID)

	empty := Envelope{Header: HeaderJoin, Data: json.RawMessage("null")}
	assert.ErrorIs(t, empty.Bind(&join), ErrMalformedEnvelope)

	wrongShape := Envelope{Header: HeaderJoin, Data: json.RawMessage(`[1,2]`)}
	assert.ErrorIs(t, wrongShape.Bind(&join), ErrMalformedEnvelope)
}

func TestMailboxDropsWhenFull(t *testing.T) {
	m := NewMailbox(1)

	assert.True(t, m.Push([]byte("first")))
	assert.False(t, m.Push([]byte("second")), "full mailbox must not block")
	assert.Equal(t, "first", string(<-m))
}

func TestNewMailboxMinimumSize(t *testing.T) {
	m := NewMailbox(0)
	assert.Equal(t, 1, cap(m))
}
