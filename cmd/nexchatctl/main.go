package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pbraga/nexchat/internal/ctlclient"
	"github.com/pbraga/nexchat/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := ctlclient.New(profile.SocketPath(profileName))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "login":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: nexchatctl login <username> <password>")
			os.Exit(1)
		}
		cmdLogin(ctx, c, args[1], args[2], *jsonFlag)
	case "register":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: nexchatctl register <username> <full name> <password>")
			os.Exit(1)
		}
		cmdRegister(ctx, c, args[1], args[2], args[3], *jsonFlag)
	case "logout":
		cmdLogout(ctx, c)
	case "users":
		cmdUsers(ctx, c, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nexchatctl open <username>")
			os.Exit(1)
		}
		cmdOpen(ctx, c, args[1], *jsonFlag)
	case "close":
		if err := c.Close(ctx); err != nil {
			fail(err)
		}
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: nexchatctl send <username> <message>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2])
	case "watch":
		cmdWatch(c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: nexchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  login <user> <pass>             Log in to the chat server")
	fmt.Fprintln(os.Stderr, "  register <user> <name> <pass>   Create an account and log in")
	fmt.Fprintln(os.Stderr, "  logout                          Log out and discard local state")
	fmt.Fprintln(os.Stderr, "  users                           List users on the server")
	fmt.Fprintln(os.Stderr, "  chats                           List conversations")
	fmt.Fprintln(os.Stderr, "  open <user>                     Open a conversation and print it")
	fmt.Fprintln(os.Stderr, "  close                           Close the open conversation")
	fmt.Fprintln(os.Stderr, "  send <user> <message>           Send a message")
	fmt.Fprintln(os.Stderr, "  watch                           Stream daemon events")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(data))
}

func cmdStatus(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile:   %s\n", st.Profile)
	fmt.Printf("State:     %s\n", st.State)
	if st.Username != "" {
		fmt.Printf("User:      %s\n", st.Username)
	}
	fmt.Printf("Connected: %v\n", st.Connected)
	fmt.Printf("Uptime:    %dms\n", st.UptimeMs)
}

func cmdLogin(ctx context.Context, c *ctlclient.Client, username, password string, jsonOut bool) {
	st, err := c.Login(ctx, username, password)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Logged in as %s (%s)\n", st.Username, st.State)
}

func cmdRegister(ctx context.Context, c *ctlclient.Client, username, fullName, password string, jsonOut bool) {
	st, err := c.Register(ctx, username, fullName, password)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Registered and logged in as %s (%s)\n", st.Username, st.State)
}

func cmdLogout(ctx context.Context, c *ctlclient.Client) {
	if err := c.Logout(ctx); err != nil {
		fail(err)
	}
	fmt.Println("Logged out")
}

func cmdUsers(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	users, err := c.Users(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(users)
		return
	}
	for _, u := range users {
		fmt.Printf("%-20s %-30s %s\n", u.Username, u.FullName, u.Status)
	}
}

func cmdChats(ctx context.Context, c *ctlclient.Client, jsonOut bool) {
	chats, err := c.Conversations(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	for _, ch := range chats {
		badge := ""
		if ch.Unread > 0 {
			badge = fmt.Sprintf(" (%d unread)", ch.Unread)
		}
		ts := time.UnixMilli(ch.LastTimestamp).Format("2006-01-02 15:04")
		fmt.Printf("%-20s %s  %s%s\n", ch.CounterpartID, ts, ch.LastPreview, badge)
	}
}

func cmdOpen(ctx context.Context, c *ctlclient.Client, counterpartID string, jsonOut bool) {
	conv, err := c.Open(ctx, counterpartID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(conv)
		return
	}
	for _, m := range conv.Messages {
		ts := time.UnixMilli(m.SentAt).Format("15:04")
		who := m.SenderID
		if m.FromMe {
			who = "me"
		}
		fmt.Printf("[%s] %s: %s (%s)\n", ts, who, m.Content, m.Status)
	}
}

func cmdSend(ctx context.Context, c *ctlclient.Client, recipientID, content string) {
	placeholderID, err := c.Send(ctx, recipientID, content)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Queued %s\n", placeholderID)
}

func cmdWatch(c *ctlclient.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Fprintln(os.Stderr, "watching events, ^C to stop")
	err := c.Watch(ctx, func(evt ctlclient.Event) {
		fmt.Printf("%s %s\n", evt.Kind, string(evt.Data))
	})
	if err != nil {
		fail(err)
	}
}
