// Package ws is the websocket transport to the Twitch IRC gateway: dialing,
// the capability/auth/nick handshake, and channel joins. Frames are UTF-8
// text and may batch multiple CRLF-delimited protocol lines.
package ws

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Conn wraps a websocket connection in a line-oriented API.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to the chat gateway.
func Dial(ctx context.Context, endpoint string) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close() //nolint:errcheck // handshake response body is not used
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Conn{ws: ws}, nil
}

// ReadFrame blocks until the next text frame arrives.
func (c *Conn) ReadFrame() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SendLine writes one protocol line as a text frame.
func (c *Conn) SendLine(line string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close tears down the connection, unblocking any pending ReadFrame.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Authenticate performs the capability request and credential handshake.
func (c *Conn) Authenticate(token, nick string) error {
	if err := c.SendLine("CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"); err != nil {
		return fmt.Errorf("cap req: %w", err)
	}
	if err := c.SendLine("PASS oauth:" + token); err != nil {
		return fmt.Errorf("pass: %w", err)
	}
	if err := c.SendLine("NICK " + nick); err != nil {
		return fmt.Errorf("nick: %w", err)
	}
	return nil
}

// JoinChannels joins all channels with a single JOIN line.
func (c *Conn) JoinChannels(channels []string) error {
	if len(channels) == 0 {
		return nil
	}
	withHash := make([]string, len(channels))
	for i, ch := range channels {
		withHash[i] = "#" + strings.TrimPrefix(ch, "#")
	}
	return c.SendLine("JOIN " + strings.Join(withHash, ","))
}
