package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/profile"
	"github.com/matheus3301/convsync/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name, err := profile.Resolve(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := profile.SocketPath(name)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// watch runs until interrupted; everything else is a single RPC.
	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmdWatch(ctx, c, optional(args, 1), *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	out := *jsonFlag
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "sessions":
		page := int32(1)
		if p := optional(args, 1); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n < 1 {
				fail(fmt.Errorf("invalid page %q", p))
			}
			page = int32(n)
		}
		cmdSessions(ctx, c, page, out)
	case "open":
		cmdOpen(ctx, c, optional(args, 1), out)
	case "messages":
		cmdMessages(ctx, c, required(args, 1, "messages <conversation id>"), out)
	case "send":
		id := required(args, 1, "send <conversation id> <text>")
		text := strings.Join(args[2:], " ")
		cmdSend(ctx, c, id, text, out)
	case "retry":
		id := required(args, 1, "retry <conversation id> <message id>")
		cmdRetry(ctx, c, id, required(args, 2, "retry <conversation id> <message id>"), out)
	case "older":
		cmdOlder(ctx, c, required(args, 1, "older <conversation id>"), out)
	case "refresh":
		cmdRefresh(ctx, c, required(args, 1, "refresh <conversation id>"), out)
	case "close":
		id := required(args, 1, "close <conversation id>")
		if _, err := c.Conversations.CloseConversation(ctx, &convsyncv1.CloseConversationRequest{ConversationID: id}); err != nil {
			fail(err)
		}
		if !out {
			fmt.Printf("Closed %s\n", id)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: convsyncctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show daemon and gateway status")
	fmt.Fprintln(os.Stderr, "  sessions [page]            List active sessions")
	fmt.Fprintln(os.Stderr, "  open [id]                  Open a conversation (no id starts a new chat)")
	fmt.Fprintln(os.Stderr, "  messages <id>              Print the reconciled thread")
	fmt.Fprintln(os.Stderr, "  send <id> <text>           Send a text message")
	fmt.Fprintln(os.Stderr, "  retry <id> <message id>    Retry a failed message")
	fmt.Fprintln(os.Stderr, "  older <id>                 Load an older history page")
	fmt.Fprintln(os.Stderr, "  refresh <id>               Refetch the latest history page")
	fmt.Fprintln(os.Stderr, "  close <id>                 Close a conversation")
	fmt.Fprintln(os.Stderr, "  watch [id]                 Stream view events until interrupted")
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func required(args []string, i int, usage string) string {
	if len(args) <= i || args[i] == "" {
		fmt.Fprintf(os.Stderr, "usage: convsyncctl %s\n", usage)
		os.Exit(1)
	}
	return args[i]
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	resp, err := c.Daemon.GetStatus(ctx, &convsyncv1.GetStatusRequest{})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	gateway := "ok"
	if !resp.GatewayOK {
		gateway = "unreachable"
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("Gateway:  %s (%s)\n", resp.GatewayURL, gateway)
	fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Parked:   %d\n", resp.ParkedStatus)
	fmt.Printf("Dropped:  %d\n", resp.DroppedEvents)
	for _, ch := range resp.Channels {
		fmt.Printf("  %-36s %s\n", ch.ConversationID, ch.State)
	}
}

func cmdSessions(ctx context.Context, c *client.Client, page int32, jsonOut bool) {
	resp, err := c.Conversations.ListSessions(ctx, &convsyncv1.ListSessionsRequest{Page: page})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Error != "" {
		fail(errors.New(resp.Error))
	}
	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range resp.Sessions {
		contact := s.FullName
		if contact == "" {
			contact = s.MobileNumber
		}
		fmt.Printf("%-36s %-9s %-24s %s\n", s.ID, s.Channel, contact, s.LastMessagePreview)
	}
	fmt.Printf("\n%d-%d of %d\n", resp.PageInfo.Offset+1, resp.PageInfo.Offset+int32(len(resp.Sessions)), resp.PageInfo.Total)
}

func cmdOpen(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.Conversations.OpenConversation(ctx, &convsyncv1.OpenConversationRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Opened %s (%s, %s)\n", resp.ConversationID, resp.Channel, resp.State)
	if resp.RefreshError != "" {
		fmt.Fprintf(os.Stderr, "warning: history unavailable: %s\n", resp.RefreshError)
	}
	printMessages(resp.Messages)
}

func cmdMessages(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.Conversations.GetMessages(ctx, &convsyncv1.GetMessagesRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	printMessages(resp.Messages)
}

func cmdSend(ctx context.Context, c *client.Client, id, text string, jsonOut bool) {
	resp, err := c.Conversations.SendText(ctx, &convsyncv1.SendTextRequest{ConversationID: id, Content: text})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Queued %s (%s)\n", resp.Message.LocalID, resp.Message.Status)
}

func cmdRetry(ctx context.Context, c *client.Client, id, msgID string, jsonOut bool) {
	resp, err := c.Conversations.RetryMessage(ctx, &convsyncv1.RetryMessageRequest{ConversationID: id, MessageID: msgID})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Retrying %s (%s)\n", resp.Message.LocalID, resp.Message.Status)
}

func cmdOlder(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.Conversations.LoadOlder(ctx, &convsyncv1.LoadOlderRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Added %d older messages (more: %v)\n", resp.Added, resp.HasMore)
}

func cmdRefresh(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.Conversations.RefreshConversation(ctx, &convsyncv1.RefreshConversationRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Added %d, refined %d\n", resp.Added, resp.Refined)
}

func cmdWatch(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	stream, err := c.Conversations.WatchConversation(ctx, &convsyncv1.WatchConversationRequest{ConversationID: id})
	if err != nil {
		fail(err)
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return
		}
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		ts := time.UnixMilli(evt.OccurredAtUnixMs).Format("15:04:05")
		switch evt.Kind {
		case convsyncv1.EventViewChanged:
			fmt.Printf("%s %s view v%d %s added=%d refined=%d\n", ts, evt.ConversationID, evt.Version, evt.Reason, evt.Added, evt.Refined)
		case convsyncv1.EventStateChanged:
			fmt.Printf("%s %s state %s\n", ts, evt.ConversationID, evt.State)
		case convsyncv1.EventSendFailed:
			fmt.Printf("%s %s send %s failed: %s\n", ts, evt.ConversationID, evt.LocalID, evt.Error)
		}
	}
}

func printMessages(msgs []convsyncv1.Message) {
	for _, m := range msgs {
		ts := time.UnixMilli(m.SentAtUnixMs).Format("2006-01-02 15:04:05")
		arrow := "<"
		if m.Direction == "outbound" {
			arrow = ">"
		}
		status := m.Status
		if m.Provisional {
			status += "*"
		}
		content := m.Content
		if m.MediaRef != "" {
			content = strings.TrimSpace(content + " " + m.MediaRef)
		}
		fmt.Printf("%s %s %-10s %s\n", ts, arrow, status, content)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
