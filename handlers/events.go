package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"campus-eats-api/events"
	"campus-eats-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsReadLimit  = 512
	pausedNotice = "Live updates paused, poll for the latest state"
)

var errFeedClosed = errors.New("event feed closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMyOrders pushes updates for the caller's orders. Staff may watch
// another student's feed with ?user_id=.
func (h *Handler) StreamMyOrders(c *gin.Context) {
	a := actor(c)
	userID := a.UserID
	if raw := c.Query("user_id"); raw != "" {
		if !a.IsStaff() {
			h.respondError(c, services.ErrForbidden)
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		userID = uint(id)
	}
	h.stream(c, events.UserChannel(userID))
}

// StreamOrder pushes updates for one order to its owner or staff
func (h *Handler) StreamOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.orders.Get(c.Request.Context(), actor(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.stream(c, events.OrderChannel(id))
}

// StreamMenu pushes menu and shop status changes (public)
func (h *Handler) StreamMenu(c *gin.Context) {
	h.stream(c, events.ChannelMenu, events.ChannelShop)
}

// StreamAllOrders pushes every order update to the staff dashboard
func (h *Handler) StreamAllOrders(c *gin.Context) {
	h.stream(c, events.PatternAllOrders, events.ChannelShop)
}

// stream serves channels as server-sent events until the client leaves or
// the hub drops the subscriber.
func (h *Handler) stream(c *gin.Context, channels ...string) {
	sub, err := h.hub.Subscribe(channels...)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"channels": channels})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				c.SSEvent("unavailable", gin.H{"message": pausedNotice})
				c.Writer.Flush()
				return
			}
			c.SSEvent("message", string(msg))
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
		}
		c.Writer.Flush()
	}
}

// WebSocket serves the caller's order updates plus menu and shop changes
// over one socket. Staff also receive every order update.
func (h *Handler) WebSocket(c *gin.Context) {
	a := actor(c)
	channels := []string{events.UserChannel(a.UserID), events.ChannelMenu, events.ChannelShop}
	if a.IsStaff() {
		channels = append(channels, events.PatternAllOrders)
	}
	sub, err := h.hub.Subscribe(channels...)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		conn.SetReadLimit(wsReadLimit)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		defer conn.Close()
		ping := time.NewTicker(h.heartbeat)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-sub.Messages():
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, pausedNotice))
					return errFeedClosed
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return err
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return err
				}
			}
		}
	})
	err = g.Wait()
	h.logger.Debugw("websocket closed", "user_id", a.UserID, "reason", err)
}
