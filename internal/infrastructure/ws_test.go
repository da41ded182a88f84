package infra

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebsocket_PublishSubscribe(t *testing.T) {
	e := echo.New()
	ws := NewWebsocket(zap.NewNop())
	e.GET("/ws/:topic", ws.Subscribe(func(c echo.Context) (string, error) {
		if c.Param("topic") == "forbidden" {
			return "", echo.NewHTTPError(http.StatusForbidden)
		}
		return c.Param("topic"), nil
	}))
	server := httptest.NewServer(e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/news", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ws.Subscribers("news") == 1 }, time.Second, 10*time.Millisecond)
	ws.Publish("other", map[string]string{"skip": "me"})
	ws.Publish("news", map[string]string{"hello": "world"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{"hello": "world"}, got)

	conn.Close()
	assert.Eventually(t, func() bool { return ws.Subscribers("news") == 0 }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/forbidden", nil)
	assert.True(t, errors.Is(err, websocket.ErrBadHandshake))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebsocket_PublishWithoutSubscribers(t *testing.T) {
	ws := NewWebsocket(zap.NewNop())
	assert.NotPanics(t, func() {
		ws.Publish("nobody", struct{ A int }{1})
		ws.Publish("nobody", func() {})
	})
}
