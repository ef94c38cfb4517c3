// Terminal chat client. Lines are sent to the open conversation; commands
// start with a slash.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/directchat/internal/chat"
	"github.com/directchat/internal/client"
	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/model"
	"github.com/directchat/internal/ws"
)

const help = `commands:
  /users          list users
  /open <name|id> open a conversation
  /close          close it
  /older          load older messages
  /unread         unread counts
  /online         who is online
  /image <path>   send an image file
  /quit`

type printNotifier struct{}

func (printNotifier) Notify(_, message string) { fmt.Println("!", message) }

type app struct {
	s     *client.Session
	names map[string]string
}

func main() {
	logger.SetPrefix("cli")
	server := flag.String("server", "http://localhost:5001", "api service base URL")
	user := flag.String("user", "", "user id to connect as (AUTH_MODE=dev)")
	token := flag.String("token", "", "bearer token (JWT or session)")
	flag.Parse()
	if *user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	s, err := client.Connect(connectCtx, client.SessionOptions{
		ServerURL: *server,
		UserID:    *user,
		Token:     *token,
		Sync:      client.SyncOptions{Notifier: printNotifier{}},
	})
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer s.Close()

	a := &app{s: s, names: map[string]string{}}
	a.loadUsers(ctx)
	a.watch()
	fmt.Println("connected.", help)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Socket.Done():
			fmt.Println("connection lost")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !a.handle(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

func (a *app) name(id string) string {
	if n := a.names[id]; n != "" {
		return n
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *app) loadUsers(ctx context.Context) []model.UserPublic {
	users, err := a.s.API.Users(ctx)
	if err != nil {
		fmt.Println("!", err)
		return nil
	}
	for _, u := range users {
		a.names[u.ID] = u.FullName
	}
	return users
}

// watch prints what arrives on the socket. The stores are updated by their
// own subscriptions.
func (a *app) watch() {
	a.s.Socket.On(ws.EventNewMessage, func(raw json.RawMessage) {
		var m model.Message
		if json.Unmarshal(raw, &m) != nil {
			return
		}
		if m.SenderID == a.s.Sync.ActivePeer() {
			a.print(model.EnrichedMessage{Message: m}, "")
			return
		}
		fmt.Printf("* new message from %s\n", a.name(m.SenderID))
	})
	a.s.Typing.OnChange(func(peerID string, typing bool) {
		if typing && peerID == a.s.Sync.ActivePeer() {
			fmt.Printf("* %s is typing...\n", a.name(peerID))
		}
	})
}

func (a *app) print(m model.EnrichedMessage, firstUnread string) {
	if m.ID == firstUnread {
		fmt.Println("---- unread ----")
	}
	body := m.Text
	if m.ImageURL != "" {
		body = strings.TrimSpace(body + " [image " + m.ImageURL + "]")
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), a.name(m.SenderID), body)
}

func (a *app) resolve(arg string) string {
	for id, n := range a.names {
		if strings.EqualFold(n, arg) || id == arg {
			return id
		}
	}
	return arg
}

func (a *app) handle(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit":
		return false
	case "/help":
		fmt.Println(help)
	case "/users":
		for _, u := range a.loadUsers(ctx) {
			state := ""
			if a.s.Presence.IsOnline(u.ID) {
				state = " (online)"
			}
			fmt.Printf("  %s %s%s\n", u.ID, u.FullName, state)
		}
	case "/online":
		for _, id := range a.s.Presence.Online() {
			fmt.Println(" ", a.name(id))
		}
	case "/unread":
		for id, n := range a.s.Sync.Unread() {
			fmt.Printf("  %s: %d\n", a.name(id), n)
		}
	case "/open":
		if err := a.s.SelectPeer(ctx, a.resolve(arg)); err != nil {
			return true
		}
		marker := a.s.Sync.FirstUnread()
		for _, m := range a.s.Sync.Messages() {
			a.print(m, marker)
		}
	case "/close":
		a.s.SelectPeer(ctx, "")
	case "/older":
		before := len(a.s.Sync.Messages())
		if err := a.s.Sync.LoadOlder(ctx); err != nil {
			return true
		}
		msgs := a.s.Sync.Messages()
		if len(msgs) == before {
			fmt.Println("* no older messages")
			return true
		}
		for _, m := range msgs[:len(msgs)-before] {
			a.print(m, "")
		}
	case "/image":
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Println("!", err)
			return true
		}
		a.send(ctx, chat.SendInput{Image: encodeImage(data)})
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Println("unknown command;", help)
			return true
		}
		a.s.InputChanged()
		a.send(ctx, chat.SendInput{Text: line})
	}
	return true
}

func (a *app) send(ctx context.Context, in chat.SendInput) {
	if a.s.Sync.ActivePeer() == "" {
		fmt.Println("! open a conversation first")
		return
	}
	if m, err := a.s.Send(ctx, in); err == nil {
		a.print(*m, "")
	}
}
