package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sseKeepAliveInterval = 30 * time.Second

type SSEConn struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func NewSSEConn(w http.ResponseWriter) (*SSEConn, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, http.ErrNotSupported
	}
	return &SSEConn{writer: w, flusher: flusher}, nil
}

// Run writes events until the channel closes or ctx is done.
func (c *SSEConn) Run(ctx context.Context, events <-chan Event) error {
	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.writeEvent(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.writeKeepAlive(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *SSEConn) writeEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.writer, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEConn) writeKeepAlive() error {
	if _, err := c.writer.Write([]byte(":keepalive\n\n")); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
