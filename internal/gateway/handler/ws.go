package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shiyin/internal/gateway/service/session"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingEvery   = (wsPongWait * 9) / 10
	wsMaxMessage  = 64 * 1024
	wsSendBacklog = 32
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type wsOutbound struct {
	Type    string     `json:"type"`
	State   *stateView `json:"state,omitempty"`
	Intent  string     `json:"intent,omitempty"`
	Code    string     `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

// blockingIntents wait on generation; they run off the read loop so that a
// navigation arriving meanwhile can abandon them.
var blockingIntents = map[string]bool{
	session.IntentSearch:     true,
	session.IntentRandom:     true,
	session.IntentOpenCards:  true,
	session.IntentOpenLetter: true,
}

// ServeWS streams state snapshots to the client and accepts intents:
//
//	-> {"type":"search","mood":"..."}   an intent, same shape as POST /actions
//	-> {"type":"ping"}
//	<- {"type":"state","state":{...}}
//	<- {"type":"error","intent":"search","code":"busy","message":"..."}
//	<- {"type":"pong"}
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := h.log.With(zap.String("session_id", s.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadLimit(wsMaxMessage)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, wsSendBacklog)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the connection unblocks the read loop.
		defer conn.Close()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// The subscription ends when the session closes; so does the socket.
	states := s.Subscribe(ctx)
	go func() {
		for st := range states {
			pushWS(writeCh, wsOutbound{Type: "state", State: viewOf(st)})
		}
		cancel()
	}()

	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		<-writerDone
	}()

	for {
		var in session.Intent
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		in.Type = strings.ToLower(strings.TrimSpace(in.Type))
		if in.Type == "ping" {
			pushWS(writeCh, wsOutbound{Type: "pong"})
			continue
		}
		run := func(in session.Intent) {
			if _, err := s.Dispatch(ctx, in); err != nil {
				_, code := classify(err)
				pushWS(writeCh, wsOutbound{Type: "error", Intent: in.Type, Code: code, Message: err.Error()})
			}
		}
		if blockingIntents[in.Type] {
			inflight.Add(1)
			go func(in session.Intent) {
				defer inflight.Done()
				run(in)
			}(in)
			continue
		}
		run(in)
	}
}

// pushWS enqueues out, dropping the oldest queued frame when the client
// falls behind.
func pushWS(writeCh chan wsOutbound, out wsOutbound) {
	for {
		select {
		case writeCh <- out:
			return
		default:
		}
		select {
		case <-writeCh:
		default:
		}
	}
}
