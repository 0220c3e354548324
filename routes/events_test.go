package routes

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus-eats-api/events"
	"campus-eats-api/models"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses a server-sent event stream onto a channel.
func readEvents(resp *http.Response) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, stream <-chan sseEvent, name string) sseEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-stream:
			require.True(t, ok, "stream ended before %q", name)
			if ev.name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event", name)
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMenuStreamDeliversMenuAndShopChanges(t *testing.T) {
	api := newTestAPI(t)
	admin := api.user(t, "root", models.RoleAdmin)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	resp := openStream(t, srv, "/events/menu", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	stream := readEvents(resp)
	nextEvent(t, stream, "connected")

	item := api.menuItem(t, admin, "Masala Dosa", 60)
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(nextEvent(t, stream, "message").data), &ev))
	assert.Equal(t, events.TypeMenuUpdate, ev.Type)
	assert.Equal(t, item.ID, ev.ItemID)

	w := api.do(t, http.MethodPut, "/api/admin/shop", admin, gin.H{"open": false})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal([]byte(nextEvent(t, stream, "message").data), &ev))
	assert.Equal(t, events.TypeShopStatus, ev.Type)
}

func TestOrderStreamsRespectOwnership(t *testing.T) {
	api := newTestAPI(t)
	alice := api.user(t, "alice", models.RoleStudent)
	bob := api.user(t, "bobby", models.RoleStudent)
	admin := api.user(t, "root", models.RoleAdmin)
	item := api.menuItem(t, admin, "Chai", 10)
	order := api.placeOrder(t, alice, item.ID, 1)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	orderPath := fmt.Sprintf("/events/orders/%d", order.ID)
	assert.Equal(t, http.StatusForbidden, openStream(t, srv, orderPath, bob).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, openStream(t, srv, orderPath, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, openStream(t, srv, "/events/orders?user_id=1", bob).StatusCode)

	mine := readEvents(openStream(t, srv, "/events/orders", alice))
	nextEvent(t, mine, "connected")
	staff := readEvents(openStream(t, srv, "/admin/events", admin))
	nextEvent(t, staff, "connected")

	w := api.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%d/payment", order.ID), alice,
		gin.H{"transaction_reference": "UTR424242"})
	require.Equal(t, http.StatusOK, w.Code)

	for _, stream := range []<-chan sseEvent{mine, staff} {
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(nextEvent(t, stream, "message").data), &ev))
		assert.Equal(t, events.TypeOrderUpdate, ev.Type)
		assert.Equal(t, order.ID, ev.OrderID)
		assert.Equal(t, string(models.StatusPendingVerification), ev.Status)
	}
}

func TestStreamsUnavailableWithoutStore(t *testing.T) {
	api := newTestAPI(t)
	student := api.user(t, "asha", models.RoleStudent)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	open := readEvents(openStream(t, srv, "/events/orders", student))
	nextEvent(t, open, "connected")

	api.mr.Close()
	// the first failed store call marks it down
	api.do(t, http.MethodGet, "/api/config", "", nil)
	nextEvent(t, open, "unavailable")
	require.Eventually(t, func() bool { return !api.hub.Ready() }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, openStream(t, srv, "/events/menu", "").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, openStream(t, srv, "/events/orders", student).StatusCode)
}

func TestWebSocketReceivesOwnOrderAndMenuUpdates(t *testing.T) {
	api := newTestAPI(t)
	student := api.user(t, "asha", models.RoleStudent)
	admin := api.user(t, "root", models.RoleAdmin)
	item := api.menuItem(t, admin, "Poha", 25)
	order := api.placeOrder(t, student, item.ID, 1)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + student
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	read := func() events.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev events.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	w := api.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%d/payment", order.ID), student,
		gin.H{"transaction_reference": "UTR515151"})
	require.Equal(t, http.StatusOK, w.Code)
	ev := read()
	assert.Equal(t, events.TypeOrderUpdate, ev.Type)
	assert.Equal(t, order.ID, ev.OrderID)

	w = api.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/menu/%d/availability", item.ID), admin, gin.H{"is_available": false})
	require.Equal(t, http.StatusOK, w.Code)
	ev = read()
	assert.Equal(t, events.TypeMenuUpdate, ev.Type)
	assert.Equal(t, item.ID, ev.ItemID)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake, "sockets require a token")
}
