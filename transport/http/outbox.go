package http

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"
	"github.com/layer-3/sentinel/core"
	"github.com/lightningnetwork/lnd/queue"
)

const writeWait = 10 * time.Second

// outbox serializes writes to a websocket connection. Send never blocks on
// the network: responses are buffered in an unbounded queue and written by a
// single goroutine.
type outbox struct {
	conn   *websocket.Conn
	logger watermill.LoggerAdapter

	updates *queue.ConcurrentQueue

	stopOnce sync.Once
	quit     chan struct{}
	wg       sync.WaitGroup
}

func newOutbox(conn *websocket.Conn, logger watermill.LoggerAdapter) *outbox {
	return &outbox{
		conn:    conn,
		logger:  logger,
		updates: queue.NewConcurrentQueue(20),
		quit:    make(chan struct{}),
	}
}

func (o *outbox) start() {
	o.updates.Start()

	o.wg.Add(1)
	go o.writeLoop()
}

// Send queues resp for writing. Responses sent after stop are dropped.
func (o *outbox) Send(resp core.Response) {
	select {
	case o.updates.ChanIn() <- resp:
	case <-o.quit:
	}
}

func (o *outbox) stop() {
	o.stopOnce.Do(func() {
		close(o.quit)
		o.wg.Wait()
		o.updates.Stop()
	})
}

func (o *outbox) writeLoop() {
	defer o.wg.Done()

	for {
		select {
		case item := <-o.updates.ChanOut():
			resp := item.(core.Response)

			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteJSON(resp); err != nil {
				o.logger.Debug("Failed to write response", watermill.LogFields{
					"id":  resp.ID,
					"err": err.Error(),
				})
				// The read loop notices the broken connection.
				_ = o.conn.Close()
				return
			}

		case <-o.quit:
			return
		}
	}
}
