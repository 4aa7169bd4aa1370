package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsifry/metarelay/internal/event"
)

const (
	// heartbeatInterval keeps the realtime session alive between inserts.
	heartbeatInterval = 25 * time.Second

	// readDeadline bounds how long a silent connection is trusted. Two missed
	// heartbeat acks mean the stream is dead.
	readDeadline = 60 * time.Second
)

// realtimeMessage is one frame of the phoenix-style realtime protocol.
type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

// insertPayload carries the inserted row for table-change frames.
type insertPayload struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// Subscribe opens the live stream for one repo. Events are delivered in
// arrival order on the first channel; the second channel carries at most one
// terminal error. Both channels close when the stream ends for any reason,
// including ctx cancellation; the caller re-enters catch-up before
// resubscribing.
func (c *HTTPClient) Subscribe(ctx context.Context, repo string) (<-chan event.Event, <-chan error, error) {
	conn, err := c.dial(ctx, repo)
	if err != nil {
		return nil, nil, err
	}

	events := make(chan event.Event, 64)
	errs := make(chan error, 1)

	go c.readLoop(ctx, conn, repo, events, errs)

	return events, errs, nil
}

func (c *HTTPClient) dial(ctx context.Context, repo string) (*websocket.Conn, error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			if statusErr := classifyStatus(resp.StatusCode); statusErr != nil {
				return nil, statusErr
			}
		}
		return nil, transientf("dial realtime: %w", err)
	}

	join := realtimeMessage{
		Topic:   topicFor(repo),
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     "1",
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, transientf("join realtime topic: %w", err)
	}

	c.logger.Debug("realtime subscribed", "repo", repo)
	return conn, nil
}

// websocketURL converts the REST base URL to the realtime websocket endpoint,
// carrying the API key as a query parameter the way the hosted service
// expects.
func (c *HTTPClient) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", c.apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func topicFor(repo string) string {
	return "realtime:public:events:repo=eq." + repo
}

// decodeInsert extracts an event from one realtime frame. Frames for other
// topics, non-insert events, and protocol chatter (heartbeat acks, join
// replies) return ok=false; a frame that should carry a row but does not
// parse returns an error.
func decodeInsert(repo string, data []byte) (event.Event, bool, error) {
	var msg realtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return event.Event{}, false, fmt.Errorf("decode frame: %w", err)
	}

	if msg.Event != "INSERT" || msg.Topic != topicFor(repo) {
		return event.Event{}, false, nil
	}

	var ins insertPayload
	if err := json.Unmarshal(msg.Payload, &ins); err != nil {
		return event.Event{}, false, fmt.Errorf("decode insert payload: %w", err)
	}

	var ev event.Event
	if err := json.Unmarshal(ins.Record, &ev); err != nil {
		return event.Event{}, false, fmt.Errorf("decode record: %w", err)
	}
	return ev, true, nil
}

func (c *HTTPClient) readLoop(ctx context.Context, conn *websocket.Conn, repo string, events chan<- event.Event, errs chan<- error) {
	defer close(events)
	defer close(errs)
	defer conn.Close()

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	// Heartbeats keep the session alive; a write failure surfaces on the next
	// read.
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		ref := 2
		for {
			select {
			case <-ticker.C:
				hb := realtimeMessage{
					Topic:   "phoenix",
					Event:   "heartbeat",
					Payload: json.RawMessage(`{}`),
					Ref:     fmt.Sprintf("%d", ref),
				}
				ref++
				if err := conn.WriteJSON(hb); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errs <- transientf("realtime read: %w", err)
			return
		}

		ev, ok, err := decodeInsert(repo, data)
		if err != nil {
			c.logger.Warn("realtime frame not understood", "error", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
