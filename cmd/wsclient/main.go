// Command wsclient joins the focusflow relay as a silent tab and prints every
// envelope it receives.
// Usage: go run ./cmd/wsclient 127.0.0.1:7171
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/focusflow/host/internal/bus"
)

func main() {
	addr := "127.0.0.1:7171"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: "tab=watch-" + uuid.NewString()}
	fmt.Printf("Connecting to %s...\n", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Waiting for envelopes...")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	messageCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			messageCount++

			var env bus.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				fmt.Printf("[%d] Raw: %s\n", messageCount, string(data))
				continue
			}

			at := time.UnixMilli(env.Timestamp).Format("15:04:05.000")
			fmt.Printf("[%d] %s %s from=%s key=%s value=%s\n", messageCount, at, env.Kind, env.OriginTabID, env.Key, string(env.Value))
		}
	}()

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total envelopes received: %d\n", messageCount)
}
