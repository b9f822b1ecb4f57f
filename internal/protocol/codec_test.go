package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf, 0)

	sent := Envelope{
		ID:        "env-1",
		Type:      MessageTypeCommand,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Token:     "tok",
		Metadata:  map[string]interface{}{"action": "message_send"},
		Payload:   map[string]interface{}{"text": "hello"},
	}
	require.NoError(t, enc.Encode(ctx, sent))

	got, err := dec.Decode(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Type, got.Type)
	assert.Equal(t, sent.Metadata, got.Metadata)
}

func TestCodecMultipleFrames(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, enc.Encode(ctx, Envelope{ID: id, Type: MessageTypeEvent}))
	}

	dec := NewDecoder(&buf, 0)
	for _, id := range []string{"a", "b", "c"} {
		env, err := dec.Decode(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, env.ID)
	}
	_, err := dec.Decode(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	payload, err := json.Marshal(Envelope{ID: "big", Type: MessageTypeCommand})
	require.NoError(t, err)

	var buf bytes.Buffer
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	buf.Write(header)
	buf.Write(payload)

	dec := NewDecoder(&buf, len(payload)-1)
	_, err = dec.Decode(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestDecoderRejectsZeroLengthFrame(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0, 0, 0, 0}), 0)
	_, err := dec.Decode(context.Background())
	require.Error(t, err)
}

func TestDecoderHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(context.Background(), Envelope{ID: "x"}))

	_, err := NewDecoder(&buf, 0).Decode(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
