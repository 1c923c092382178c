package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/layer-3/sentinel/core"
)

// message is a core.Response as read off the wire
type message struct {
	ID           string          `json:"id"`
	Response     json.RawMessage `json:"response,omitempty"`
	Error        string          `json:"error,omitempty"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

// Client is a websocket connection to a broker
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	waiters map[string]chan message
	streams map[string]func(json.RawMessage)
	err     error

	done chan struct{}
}

var _ Caller = (*Client)(nil)

// Dial connects to a broker endpoint. Pages pass their Origin in header,
// extension pages add the token query parameter to url.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		waiters: make(map[string]chan message),
		streams: make(map[string]func(json.RawMessage)),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Call sends one request and decodes its response into result, which may be
// nil.
func (c *Client) Call(ctx context.Context, kind string, payload, result interface{}) error {
	return c.do(ctx, kind, payload, result, nil)
}

// Subscribe sends a streaming request. The first response is decoded into
// result; later subscription messages go to onUpdate.
func (c *Client) Subscribe(ctx context.Context, kind string, payload, result interface{},
	onUpdate func(json.RawMessage)) error {

	return c.do(ctx, kind, payload, result, onUpdate)
}

// Close closes the connection
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) do(ctx context.Context, kind string, payload, result interface{},
	onUpdate func(json.RawMessage)) error {

	env := core.Envelope{Kind: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", kind, err)
		}
		env.Payload = data
	}

	wait := make(chan message, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.nextID++
	env.ID = strconv.FormatUint(c.nextID, 10)
	c.waiters[env.ID] = wait
	if onUpdate != nil {
		c.streams[env.ID] = onUpdate
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(env.ID)
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}

	select {
	case msg := <-wait:
		if msg.Error != "" {
			c.forget(env.ID)
			return fmt.Errorf("%w: %s", ErrRemote, msg.Error)
		}
		if result != nil && len(msg.Response) > 0 {
			if err := json.Unmarshal(msg.Response, result); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", kind, err)
			}
		}
		return nil

	case <-ctx.Done():
		c.forget(env.ID)
		return ctx.Err()

	case <-c.done:
		return ErrClientClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.waiters, id)
	delete(c.streams, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.err = ErrClientClosed
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		// Streams may push before the first response arrives, so
		// updates are matched first.
		if len(msg.Subscription) > 0 {
			onUpdate := c.streams[msg.ID]
			c.mu.Unlock()
			if onUpdate != nil {
				onUpdate(msg.Subscription)
			}
			continue
		}
		wait, ok := c.waiters[msg.ID]
		delete(c.waiters, msg.ID)
		c.mu.Unlock()

		if ok {
			wait <- msg
		}
	}
}
