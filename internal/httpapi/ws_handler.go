// WebSocket handler implements the real-time channel from spec.md
// section 6 (WS /ws?token=). Grounded on
// original_source/.../app/routers/websocket.py's
// authenticate-then-accept-then-message-loop shape: query-param token
// auth, a "connected" welcome frame, and a read loop dispatching
// subscribe/unsubscribe/ping actions — translated from FastAPI's
// async receive_json loop into a plain blocking ReadMessage loop on
// its own goroutine, since internal/hub already owns the write side.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stockassistant/orchestrator/internal/hub"
	"github.com/stockassistant/orchestrator/internal/logging"
)

// writeWait bounds how long a close control frame is given to flush
// before the connection is torn down regardless.
const writeWait = 10 * time.Second

// Connector is the subset of *hub.Hub the websocket handler drives.
type Connector interface {
	Connect(userID string, ws *websocket.Conn) *hub.Connection
	Disconnect(connID string)
	Subscribe(connID string, tickers []string)
	Unsubscribe(connID string, tickers []string)
	SendError(connID, message string)
	SendPong(connID string)
}

type wsAPI struct {
	auth     Authenticator
	hub      Connector
	upgrader websocket.Upgrader
	log      *logging.Logger
}

func newWSAPI(auth Authenticator, h Connector, log *logging.Logger) *wsAPI {
	return &wsAPI{
		auth: auth,
		hub:  h,
		// CheckOrigin is permissive here: CORS for a non-browser-enforced
		// protocol isn't a security boundary on its own, and the access
		// token is the actual authorization check performed below.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
}

type clientMessage struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

func (a *wsAPI) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	token := r.URL.Query().Get("token")
	user, err := a.auth.VerifyAccess(r.Context(), token)
	if err != nil {
		_ = ws.WriteJSON(map[string]string{"type": "error", "message": "Authentication failed"})
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	conn := a.hub.Connect(user.ID, ws)
	defer a.hub.Disconnect(conn.ID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil {
			a.hub.SendError(conn.ID, "malformed message")
			continue
		}

		switch msg.Action {
		case "subscribe":
			a.hub.Subscribe(conn.ID, msg.Tickers)
		case "unsubscribe":
			a.hub.Unsubscribe(conn.ID, msg.Tickers)
		case "ping":
			a.hub.SendPong(conn.ID)
		default:
			a.hub.SendError(conn.ID, "unknown action: "+msg.Action)
		}
	}
}
