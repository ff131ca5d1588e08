// Package server exposes HTTP handlers, including the authenticated
// WebSocket upgrade, health check, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/minicanvas/ws-backend/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler authenticates and upgrades WebSocket requests. The
// bearer token travels in the token query parameter of the handshake; a
// missing parameter is treated as an empty credential and fails
// verification. Verification happens before the upgrade so an
// unauthenticated transport is refused at the handshake and never
// registered with the hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	cfg := currentConfig()
	token := r.URL.Query().Get("token")
	identity, err := VerifyIdentity([]byte(cfg.JWTSecret), token)
	if err != nil {
		logging.Warnf("Rejected WebSocket handshake from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, hub, identity, r.RemoteAddr)

	// Register the client with the hub; the hub will launch the pump goroutines.
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MiniCanvas relay is running!")
}

// TestPageHandler serves a minimal HTML page for exercising the relay by
// hand: paste a token, join a room, and watch chat frames arrive.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>MiniCanvas Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>MiniCanvas Relay Test</h1>
    <div>
        <input type="text" id="token" placeholder="JWT token" size="40">
        <button onclick="connect()">Connect</button>
    </div>
    <div>
        <input type="text" id="room" placeholder="Room id">
        <button onclick="send({type: 'join_room', roomId: room.value})">Join</button>
        <button onclick="send({type: 'leave_room', roomId: room.value})">Leave</button>
    </div>
    <div>
        <input type="text" id="message" placeholder="Message" size="40">
        <button onclick="send({type: 'chat', roomId: room.value, message: message.value})">Send</button>
    </div>
    <div id="messages"></div>
    <script>
        let ws = null;
        function append(text) {
            const div = document.createElement('div');
            div.textContent = text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }
        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws?token=' + encodeURIComponent(token.value));
            ws.onopen = () => append('connected');
            ws.onclose = () => append('disconnected');
            ws.onmessage = (ev) => append(ev.data);
        }
        function send(payload) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(payload));
            }
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		logging.Errorf("Error writing HTML response: %v", err)
	}
}
