package codec

import (
	"testing"
	"time"

	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonCodecShape(t *testing.T) {
	ts := time.Date(2023, 3, 14, 9, 30, 0, 0, time.UTC)
	sessions := []models.Session{
		{{Prompt: "hello", Body: []string{"hi there"}, Timestamp: ts}},
	}
	data, err := NewJsonCodec().Encode(sessions)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[[{"prompt":"hello","body":["hi there"],"timestamp":"2023-03-14T09:30:00Z"}]]`,
		string(data))

	decoded, err := NewIndentedJsonCodec().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sessions, decoded)
}

func TestJsonCodecEmpty(t *testing.T) {
	data, err := NewJsonCodec().Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	decoded, err := NewJsonCodec().Decode([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestJsonCodecInvalid(t *testing.T) {
	_, err := NewJsonCodec().Decode([]byte(`{"not":"a list"}`))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindParse))
}
