// pairqr pairs a user's WhatsApp session from the terminal: it connects to
// the backend's realtime channel, requests authentication and renders each
// issued QR code as a scannable block in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atendai/zapagent/internal/domain"
	"github.com/atendai/zapagent/internal/realtime"
	"github.com/mdp/qrterminal/v3"
)

func main() {
	server := flag.String("server", "ws://localhost:3001/ws", "realtime channel URL")
	user := flag.String("user", "", "user ID to authenticate")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: pairqr -user <id> [-server ws://host:port/ws]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := &realtime.Client{
		URL:    *server,
		Policy: realtime.DefaultBackoff(),
		OnEvent: func(ev domain.Event) {
			switch ev.Kind {
			case domain.EventQRIssued:
				fmt.Println("Scan this QR code in WhatsApp (Linked Devices):")
				qrterminal.GenerateHalfBlock(ev.QR, qrterminal.L, os.Stdout)
			case domain.EventSessionReady:
				fmt.Printf("Session for %s is ready.\n", ev.UserID)
				cancel()
			case domain.EventSessionDisconnected:
				fmt.Printf("Session disconnected: %s\n", ev.Reason)
				cancel()
			case domain.EventAuthFailed:
				fmt.Printf("Authentication failed: %s\n", ev.Msg)
				cancel()
			case domain.EventError:
				fmt.Printf("Error: %s\n", ev.Error)
			}
		},
	}

	err := client.Run(ctx, *user)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "pairqr:", err)
		os.Exit(1)
	}
}
