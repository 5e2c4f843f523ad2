package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
	"whiteboardAPI/internal/whiteboard"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is the middleman between one websocket connection and the session hub.
// Send is owned by the hub: only Run writes to it or closes it.
type Client struct {
	Session *Session
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  string

	mu       sync.Mutex
	username string

	limiter *rate.Limiter
	canvas  *whiteboard.Controller
	log     *zap.Logger
}

func NewClient(s *Session, conn *websocket.Conn, userID string, perSecond float64, burst int) *Client {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	c := &Client{
		Session: s,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		UserID:  userID,
		limiter: rate.NewLimiter(limit, burst),
		log:     s.log.With(zap.String("user_id", userID)),
	}
	c.canvas = whiteboard.NewController(clientBoard{c: c}, s.ID, userID)
	return c
}

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

// Attach registers the client with its session and makes it a voting participant.
func (c *Client) Attach() error {
	if err := c.Session.register(c); err != nil {
		return err
	}
	c.Session.join(c)
	return nil
}

// Detach is the reverse of Attach.
func (c *Client) Detach() {
	c.Session.leave(c)
	c.Session.unregister(c)
}

// clientBoard routes controller writes through the session so they are
// persisted and broadcast like any other edit.
type clientBoard struct {
	c *Client
}

func (b clientBoard) Create(d element.Draft) (element.Element, error) {
	return b.c.Session.CreateElement(context.Background(), b.c.UserID, d)
}

func (b clientBoard) Update(id string, p element.Patch) (element.Element, error) {
	return b.c.Session.UpdateElement(context.Background(), b.c.UserID, id, p)
}

type WsPayload struct {
	Action     string                   `json:"action"`
	Username   string                   `json:"username,omitempty"`
	Tool       string                   `json:"tool,omitempty"`
	Style      *element.Style           `json:"style,omitempty"`
	X          float64                  `json:"x"`
	Y          float64                  `json:"y"`
	Text       string                   `json:"text,omitempty"`
	ElementID  string                   `json:"elementId,omitempty"`
	Patch      *element.Patch           `json:"patch,omitempty"`
	FilterID   string                   `json:"filterId,omitempty"`
	Reason     element.ModerationReason `json:"reason,omitempty"`
	Moderation *policy.Config           `json:"moderation,omitempty"`
}

type canvasStateMessage struct {
	Action   string `json:"action"`
	State    string `json:"state"`
	Tool     string `json:"tool"`
	Selected string `json:"selected,omitempty"`
	Current  string `json:"current,omitempty"`
}

func (c *Client) ReadPump() {
	defer func() {
		c.Detach()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.replyError("", errors.New("rate limit exceeded"))
			continue
		}
		c.handle(message)
	}
}

// handle runs one inbound message. Failures go back to this client only.
func (c *Client) handle(message []byte) {
	var payload WsPayload
	if err := json.Unmarshal(message, &payload); err != nil {
		c.replyError("", fmt.Errorf("%w: malformed message", apperr.ErrValidation))
		return
	}
	if err := c.dispatch(payload); err != nil {
		c.log.Debug("websocket action failed", zap.String("action", payload.Action), zap.Error(err))
		c.replyError(payload.Action, err)
	}
}

func (c *Client) dispatch(p WsPayload) error {
	ctx := context.Background()
	s := c.Session

	switch p.Action {
	case "join_room":
		c.setName(p.Username)
		s.triggerList()
		return nil

	case "set_tool":
		tool, err := element.ParseType(p.Tool)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		if err := c.canvas.SetTool(tool); err != nil {
			return err
		}
		c.replyCanvasState()
		return nil

	case "set_style":
		if p.Style == nil {
			return fmt.Errorf("%w: style is required", apperr.ErrValidation)
		}
		c.canvas.SetStyle(*p.Style)
		return nil

	case "pointer_down":
		if _, err := c.canvas.PointerDown(p.X, p.Y); err != nil {
			return err
		}
		c.replyCanvasState()
		return nil

	case "pointer_move":
		_, err := c.canvas.PointerMove(p.X, p.Y)
		return err

	case "pointer_up":
		if _, err := c.canvas.PointerUp(p.X, p.Y); err != nil {
			return err
		}
		c.replyCanvasState()
		return nil

	case "text_commit":
		if _, err := c.canvas.CommitText(p.Text); err != nil {
			return err
		}
		c.replyCanvasState()
		return nil

	case "select":
		if p.ElementID != "" {
			if _, err := s.Element(c.UserID, p.ElementID); err != nil {
				return err
			}
		}
		c.canvas.Click(p.ElementID)
		c.replyCanvasState()
		return nil

	case "clear_selection":
		c.canvas.ClearSelection()
		c.replyCanvasState()
		return nil

	case "element_update":
		if p.Patch == nil || p.ElementID == "" {
			return fmt.Errorf("%w: elementId and patch are required", apperr.ErrValidation)
		}
		_, err := s.UpdateElement(ctx, c.UserID, p.ElementID, *p.Patch)
		return err

	case "vote":
		_, err := s.Vote(ctx, c.UserID, p.FilterID)
		return err

	case "unvote":
		_, err := s.Unvote(ctx, c.UserID)
		return err

	case "approve":
		_, err := s.Approve(c.UserID, p.ElementID)
		return err

	case "reject":
		_, err := s.Reject(c.UserID, p.ElementID, p.Reason)
		return err

	case "moderate_all":
		summary, err := s.ModerateAll(ctx, c.UserID)
		if err != nil {
			return err
		}
		c.reply(map[string]any{"action": "moderation_summary", "summary": summary})
		return nil

	case "set_moderation":
		if p.Moderation == nil {
			return fmt.Errorf("%w: moderation config is required", apperr.ErrValidation)
		}
		_, err := s.SetModerationConfig(ctx, c.UserID, *p.Moderation)
		return err

	default:
		return fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, p.Action)
	}
}

func (c *Client) reply(v any) {
	data := mustJSON(c.log, v)
	if data == nil {
		return
	}
	c.Session.enqueue(outbound{client: c, data: data})
}

func (c *Client) replyError(action string, err error) {
	c.reply(errorMessage{Action: "error", Error: err.Error(), Request: action})
}

func (c *Client) replyCanvasState() {
	c.reply(canvasStateMessage{
		Action:   "canvas_state",
		State:    c.canvas.State().String(),
		Tool:     c.canvas.Tool().String(),
		Selected: c.canvas.Selected(),
		Current:  c.canvas.Current(),
	})
}

// WritePump handles messages going to the frontend.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the session closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
