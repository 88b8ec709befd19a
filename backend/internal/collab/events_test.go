package collab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventRestoresConcreteType(t *testing.T) {
	evt := ContentChangedEvent{
		Type:           EventContentChanged,
		DocumentID:     "doc-1",
		Operation:      json.RawMessage(`{"insert":"x"}`),
		Version:        3,
		LastModifiedBy: "u-a",
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	got, ok := decoded.(ContentChangedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.Version)
	assert.Equal(t, "u-a", got.LastModifiedBy)
}

func TestDecodeEventRejectsUnknownType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
