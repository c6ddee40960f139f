package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

// EventsURL returns the websocket URL of the service's change feed
func (c *Client) EventsURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/api/events"
	default:
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/api/events"
	}
}

// Subscribe reads change events from the service and calls fn for each one.
// It blocks until ctx is done (returning nil) or the connection fails.
func (c *Client) Subscribe(ctx context.Context, fn func(library.Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.EventsURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event feed: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	c.log.WithField("url", c.EventsURL()).Info("Subscribed to library events")

	for {
		var evt library.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("event feed closed by service")
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		fn(evt)
	}
}
