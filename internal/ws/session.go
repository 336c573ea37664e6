package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kitbash-viewer/server/internal/hub"
)

// session bridges one websocket connection to one hub subscription. Its
// two halves run concurrently; whichever ends first closes both the
// connection and the subscription, which forces the other half out of its
// blocking call.
type session struct {
	conn *websocket.Conn
	hub  *hub.Hub
	sub  *hub.Subscriber
	once sync.Once
}

func newSession(conn *websocket.Conn, h *hub.Hub, sub *hub.Subscriber) *session {
	return &session{
		conn: conn,
		hub:  h,
		sub:  sub,
	}
}

// run starts the outbound half and drives the inbound half on the calling
// goroutine. It returns once both halves have stopped.
func (s *session) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	s.readPump()
	wg.Wait()
}

// writePump forwards subscribed events to the observer until the
// subscription is exhausted (hub shutdown or lag) or a write fails.
func (s *session) writePump() {
	defer s.teardown()
	for ev := range s.sub.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("event marshal error: %v", err)
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump drains inbound messages for liveness only; the payload is not
// interpreted. It ends when the observer disconnects or sends a close.
func (s *session) readPump() {
	defer s.teardown()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// teardown runs once, no matter which half gets here first. Closing the
// connection fails the pending read/write in the other half; unsubscribing
// closes the event channel and ends the outbound range loop.
func (s *session) teardown() {
	s.once.Do(func() {
		s.hub.Unsubscribe(s.sub)
		s.conn.Close()
	})
}
