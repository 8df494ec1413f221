package session

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// deviceMarker tags whatsmeow device rows with the owning user ID so each
// user keeps a durable credential slot across restarts.
func deviceMarker(userID string) string {
	return "zapagent:" + userID
}

// WhatsmeowFactory builds whatsmeow-backed protocol clients. All clients
// share one sqlstore container; each user ID maps to its own device slot.
type WhatsmeowFactory struct {
	container *sqlstore.Container

	mu sync.Mutex // serializes device slot lookup/creation
}

// NewWhatsmeowFactory opens (or creates) the credential database at dbPath.
func NewWhatsmeowFactory(ctx context.Context, dbPath string) (*WhatsmeowFactory, error) {
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), dbLog)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return &WhatsmeowFactory{container: container}, nil
}

// New constructs a protocol client bound to userID's device slot.
func (f *WhatsmeowFactory) New(userID string, emit func(ClientEvent)) (ProtocolClient, error) {
	device, err := f.deviceFor(context.Background(), userID)
	if err != nil {
		return nil, err
	}

	cli := whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true))
	wc := &whatsmeowClient{userID: userID, cli: cli, emit: emit}

	cli.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Connected:
			emit(Ready{})
		case *events.Disconnected:
			emit(Disconnected{Reason: "connection closed"})
		case *events.LoggedOut:
			emit(AuthFailed{Message: v.Reason.String()})
		}
	})

	return wc, nil
}

// deviceFor finds the stored device carrying userID's marker, or creates a
// fresh unpaired device slot.
func (f *WhatsmeowFactory) deviceFor(ctx context.Context, userID string) (*store.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	devices, err := f.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored devices: %w", err)
	}
	marker := deviceMarker(userID)
	for _, d := range devices {
		if d != nil && d.BusinessName == marker {
			return d, nil
		}
	}

	device := f.container.NewDevice()
	device.BusinessName = marker
	device.PushName = userID
	return device, nil
}

// whatsmeowClient adapts a whatsmeow.Client to the ProtocolClient surface.
type whatsmeowClient struct {
	userID string
	cli    *whatsmeow.Client
	emit   func(ClientEvent)
}

// Connect starts the client. For an unpaired device the QR channel is
// drained in the background, forwarding each code as a QRCode event; a
// pairing timeout surfaces as a Disconnected event.
func (c *whatsmeowClient) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case "code":
					c.emit(QRCode{Code: item.Code})
				case "timeout":
					c.emit(Disconnected{Reason: "qr scan timed out"})
				}
			}
		}()
	}

	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Logout invalidates the stored credential and disconnects.
func (c *whatsmeowClient) Logout(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		c.cli.Disconnect()
		return nil
	}
	if err := c.cli.Logout(ctx); err != nil {
		c.cli.Disconnect()
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Send delivers a text message to the recipient's JID.
func (c *whatsmeowClient) Send(ctx context.Context, to, text string) error {
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient jid: %w", err)
	}
	_, err = c.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
