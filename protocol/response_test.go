package protocol

import (
	"bytes"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponse(t *testing.T) {
	ok := NewResponse(nil, map[string]int{"n": 1})
	assert.Equal(t, 0, ok.ErrCode)
	assert.Equal(t, map[string]int{"n": 1}, ok.Data)

	fail := NewResponse(errors.HTTP(429, "slow down"), nil)
	assert.NotZero(t, fail.ErrCode)
	assert.Equal(t, "http", fail.Kind)
	assert.Equal(t, 429, fail.Status)
	assert.Nil(t, fail.Data)

	plain := NewResponse(stderrors.New("plain"), nil)
	assert.Equal(t, "plain", plain.ErrMsg)
	assert.Equal(t, "unknown", plain.Kind)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, errors.New(errors.KindValidation, "bad size"), nil))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "bad size", got["errmsg"])
	assert.Equal(t, "validation", got["kind"])
	assert.NotContains(t, got, "data")
}

func TestEchoResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, Response(c, nil, []string{"a"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got BaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 0, got.ErrCode)
	assert.Equal(t, []interface{}{"a"}, got.Data)
}
