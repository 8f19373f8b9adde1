// vol_listen is a debugging client for the volumed state WebSocket feed.
// It prints every state frame the daemon publishes, so you can watch
// what volume keys, config reloads and display hotplug actually do.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// wsFrame is the daemon's outbound envelope: {type, ts, data}.
type wsFrame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// stateData is the snapshot payload of state_init and volume_state frames.
type stateData struct {
	Volume      float64 `json:"volume"`
	VolumeKnown bool    `json:"volume_known"`
	Muted       bool    `json:"muted"`
	MuteKnown   bool    `json:"mute_known"`
	Target      string  `json:"target"`
	TargetName  string  `json:"target_name"`
	Backend     string  `json:"backend"`
	Icon        string  `json:"icon"`
}

type targetData struct {
	Target     string `json:"target"`
	TargetName string `json:"target_name"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8806/ws", "volumed state WebSocket URL")
		raw   = flag.Bool("raw", false, "print raw JSON frames instead of formatted lines")
	)
	flag.Parse()

	// Parse websocket URL
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Connect to websocket
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// Set up ping/pong handlers for connection health
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Start ping ticker to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	// Track last volume and mute state for change markers
	var (
		lastVolume *float64 // nil means no previous volume
		lastMute   *bool    // nil means no previous mute state
	)

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			// Each frame extends the liveness deadline too.
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if *raw {
				printRaw(message)
				continue
			}
			handleFrame(message, &lastVolume, &lastMute)
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		// Clean close
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printRaw(message []byte) {
	var jsonData map[string]any
	if err := json.Unmarshal(message, &jsonData); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	prettyJSON, _ := json.MarshalIndent(jsonData, "", "  ")
	fmt.Printf("%s\n", string(prettyJSON))
}

// handleFrame formats one daemon frame, marking volume and mute changes.
func handleFrame(message []byte, lastVolume **float64, lastMute **bool) {
	var frame wsFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	ts := time.Now()
	if frame.Ts != nil {
		ts = *frame.Ts
	}
	stamp := ts.Local().Format("15:04:05.000")

	switch frame.Type {
	case "state_init", "volume_state":
		var st stateData
		if err := json.Unmarshal(frame.Data, &st); err != nil {
			fmt.Printf("%s [%s] %s\n", stamp, frame.Type, string(frame.Data))
			return
		}
		printState(stamp, frame.Type, st, lastVolume, lastMute)

	case "target_changed":
		var td targetData
		if err := json.Unmarshal(frame.Data, &td); err != nil {
			fmt.Printf("%s [target_changed] %s\n", stamp, string(frame.Data))
			return
		}
		name := td.TargetName
		if name == "" {
			name = td.Target
		}
		fmt.Printf("%s [target_changed] now controlling %s\n", stamp, name)

	default:
		fmt.Printf("%s [%s] %s\n", stamp, frame.Type, string(frame.Data))
	}
}

func printState(stamp, kind string, st stateData, lastVolume **float64, lastMute **bool) {
	if !st.VolumeKnown {
		fmt.Printf("%s [%s] volume unknown\n", stamp, kind)
		return
	}

	pct := math.Round(st.Volume * 100)

	volChanged := *lastVolume == nil || math.Abs(**lastVolume-pct) >= 1
	muteChanged := *lastMute == nil || **lastMute != st.Muted

	if *lastVolume == nil {
		v := pct
		*lastVolume = &v
	} else {
		**lastVolume = pct
	}
	if *lastMute == nil {
		m := st.Muted
		*lastMute = &m
	} else {
		**lastMute = st.Muted
	}

	marks := ""
	if volChanged {
		marks += " *vol"
	}
	if muteChanged {
		marks += " *mute"
	}

	mute := ""
	if st.MuteKnown && st.Muted {
		mute = " [muted]"
	}
	device := st.TargetName
	if device == "" {
		device = st.Target
	}

	fmt.Printf("%s [%s] %3.0f%%%s on %s via %s%s\n", stamp, kind, pct, mute, device, st.Backend, marks)
}
