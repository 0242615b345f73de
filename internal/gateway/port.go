// Long-lived port - the options UI keeps one websocket open.
//
// DESIGN: Each frame is one router.Message; each reply is its Envelope with
// the message id echoed so the client can correlate out-of-order replies.
// Frames are handled concurrently (bounded by maxPortInflight). After every
// settings write the port also pushes {type: SETTINGS_CHANGED, settings}
// carrying the redacted frontend snapshot.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

func (g *Gateway) handlePort(w http.ResponseWriter, r *http.Request) {
	level := trustFromContext(r.Context())

	// Server read/write timeouts would otherwise cut the port.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	// The security middleware has already rejected untrusted origins.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Debug().Err(err).Msg("port: accept failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(MaxRequestBodySize)

	g.ports.Add(1)
	g.openPorts.Add(1)
	defer func() {
		g.openPorts.Add(-1)
		g.ports.Done()
	}()

	portID := monitoring.RequestIDFromContext(r.Context())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-g.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	changes, unsubscribe := g.settings.Subscribe()
	defer unsubscribe()
	go g.pushChanges(ctx, conn, changes)

	log.Debug().Str("port", portID).Stringer("trust", level).Msg("port opened")

	var inflight sync.WaitGroup
	sem := make(chan struct{}, maxPortInflight)
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Debug().Err(err).Str("port", portID).Msg("port read")
			}
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		inflight.Add(1)
		go func(raw json.RawMessage) {
			defer inflight.Done()
			defer func() { <-sem }()

			requestID := uuid.New().String()
			msgCtx := monitoring.WithRequestIDContext(ctx, requestID)
			g.requestLogger.LogMessage(&monitoring.MessageInfo{
				RequestID:   requestID,
				MessageType: string(peekType(raw)),
				Transport:   "port",
			})

			msg, err := router.Decode(raw)
			if err == nil {
				err = permit(level, msg.Type)
			}
			var env router.Envelope
			if err != nil {
				env = router.Failure(err)
				env.ID = gjson.GetBytes(raw, "id").String()
			} else {
				env = g.router.Handle(msgCtx, msg)
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				log.Debug().Err(err).Str("port", portID).Msg("port write")
			}
		}(raw)
	}

	inflight.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
	log.Debug().Str("port", portID).Msg("port closed")
}

// pushChanges forwards settings changes until ctx ends or the subscription closes.
func (g *Gateway) pushChanges(ctx context.Context, conn *websocket.Conn, changes <-chan settings.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			fs := ch.Settings.Frontend()
			env := router.Envelope{Type: router.TypeSettingsChanged, Success: true, Settings: &fs}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				return
			}
		}
	}
}

// peekType reads the message type for logging only. Permission checks use
// the decoded message.
func peekType(raw []byte) router.MessageType {
	return router.MessageType(gjson.GetBytes(raw, "type").String())
}
