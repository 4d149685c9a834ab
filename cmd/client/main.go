// Command client is a terminal chat client for exercising a NOVA Chat
// server: it claims a name, prints pushed events, and sends broadcast lines
// or "/msg <user> <text>" privates from stdin.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	IsPrivate bool   `json:"isPrivate,omitempty"`
	Username  string `json:"username,omitempty"`
	Users     []struct {
		Username string `json:"username"`
	} `json:"users,omitempty"`
	History *struct {
		PublicMessages  []frame            `json:"publicMessages"`
		PrivateMessages map[string][]frame `json:"privateMessages"`
	} `json:"history,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "Chat server websocket URL")
	name := flag.String("name", "", "Display name to claim")
	flag.Parse()
	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: client -name <username> [-url ws://host:port/ws]")
		os.Exit(2)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if err := conn.WriteJSON(frame{Type: "setUsername", Username: *name}); err != nil {
		fmt.Fprintf(os.Stderr, "claim name: %v\n", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go readLoop(conn, done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-sigCh:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out := parseLine(line)
			if out == nil {
				continue
			}
			if err := conn.WriteJSON(out); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				return
			}
		}
	}
}

// parseLine turns one stdin line into a wire frame. "/msg bob hi" is a
// private message; anything else non-empty is a broadcast.
func parseLine(line string) *frame {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if rest, ok := strings.CutPrefix(line, "/msg "); ok {
		recipient, text, found := strings.Cut(strings.TrimSpace(rest), " ")
		if !found || text == "" {
			fmt.Fprintln(os.Stderr, "usage: /msg <user> <text>")
			return nil
		}
		return &frame{Type: "message", Content: text, Recipient: recipient}
	}
	return &frame{Type: "message", Content: line}
}

func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			return
		}
		var evt frame
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		printEvent(evt)
	}
}

func printEvent(evt frame) {
	switch evt.Type {
	case "system":
		fmt.Printf("* %s\n", evt.Content)
	case "message":
		if evt.IsPrivate {
			fmt.Printf("[%s -> %s] %s\n", evt.Sender, evt.Recipient, evt.Content)
			return
		}
		fmt.Printf("[%s] %s\n", evt.Sender, evt.Content)
	case "userList":
		names := make([]string, 0, len(evt.Users))
		for _, u := range evt.Users {
			names = append(names, u.Username)
		}
		fmt.Printf("online: %s\n", strings.Join(names, ", "))
	case "chatHistory":
		if evt.History == nil {
			return
		}
		for _, m := range evt.History.PublicMessages {
			printEvent(m)
		}
		for _, msgs := range evt.History.PrivateMessages {
			for _, m := range msgs {
				printEvent(m)
			}
		}
	}
}
