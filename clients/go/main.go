// FindMyRoom CLI - command line client for the chat and unlock API
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/samirchapagain/FindMyRoom/clients/go/findmyroom"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("FINDMYROOM_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := findmyroom.NewClient(baseURL, os.Getenv("FINDMYROOM_TOKEN"))
	cmd := os.Args[1]

	switch cmd {
	case "unlock":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: findmyroom unlock <room_id>")
			os.Exit(1)
		}
		intent, err := client.RequestUnlock(os.Args[2])
		exitOnError(err)
		printJSON(intent)

	case "inbox":
		convs, err := client.Conversations()
		exitOnError(err)
		for _, c := range convs {
			badge := ""
			if c.UnreadCount > 0 {
				badge = fmt.Sprintf(" (%d unread)", c.UnreadCount)
			}
			fmt.Printf("  %s  %s%s\n", c.ID, c.OtherPartyName, badge)
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: findmyroom read <conversation_id>")
			os.Exit(1)
		}
		page, err := client.Messages(os.Args[2], 20, time.Time{})
		exitOnError(err)
		for _, msg := range page.Messages {
			who := msg.SenderID
			if msg.IsMine {
				who = "me"
			} else if len(who) > 8 {
				who = who[:8]
			}
			fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("2006-01-02 15:04:05"), who, msg.Content)
		}
		if page.HasMore {
			fmt.Println("  ... older messages available")
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: findmyroom send <room_id> <message> [client_id]")
			os.Exit(1)
		}
		clientID := ""
		if len(os.Args) > 4 {
			clientID = os.Args[4]
		}
		msg, err := client.SendMessage(os.Args[2], clientID, os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "markread":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: findmyroom markread <message_id> [message_id...]")
			os.Exit(1)
		}
		updated, err := client.MarkRead(os.Args[2:])
		exitOnError(err)
		fmt.Printf("Marked %d read\n", updated)

	case "unread":
		count, err := client.UnreadCount()
		exitOnError(err)
		fmt.Printf("Unread: %d\n", count)

	case "contact":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: findmyroom contact <room_id>")
			os.Exit(1)
		}
		contact, err := client.RoomContact(os.Args[2])
		exitOnError(err)
		printJSON(contact)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`FindMyRoom CLI - payment-gated rental chat

Usage: findmyroom <command> [options]

Commands:
  unlock <room_id>                Request an unlock intent for a room
  contact <room_id>               Show a room's contact card (after unlock)
  inbox                           List conversations
  read <conversation_id>          Read conversation history
  send <room_id> <msg> [client]   Send a message about a room
  markread <id...>                Mark received messages read
  unread                          Show total unread count

Environment:
  FINDMYROOM_URL     Server URL (default: http://localhost:8080)
  FINDMYROOM_TOKEN   Bearer token for authenticated commands`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
