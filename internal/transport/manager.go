package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for whatsmeow
)

// ManagerConfig holds construction parameters for Manager.
type ManagerConfig struct {
	// SessionPath is the SQLite file holding device credentials. ~ is
	// expanded to the home directory.
	SessionPath string

	// CountryCode is prepended to phone numbers written in local form.
	CountryCode string

	Logger *slog.Logger
}

// Listener receives transport lifecycle and message events. All fields are
// optional; nil callbacks are skipped.
type Listener struct {
	// OnAuthArtifact delivers the pairing code to render for the operator.
	OnAuthArtifact func(code string)

	// OnReady fires when the session is authenticated and connected.
	OnReady func()

	// OnDisconnected fires when the session drops. The manager does not
	// reconnect; the operator restarts the service.
	OnDisconnected func()

	// OnAuthFailed fires when the device is logged out remotely.
	OnAuthFailed func(reason string)

	// OnMessage delivers an inbound direct text message. Group and
	// self-sent messages are filtered before this point.
	OnMessage func(msg *Message)

	// OnMessageSent fires after a successful outbound send.
	OnMessageSent func(phone, body string)
}

// Manager owns the WhatsApp session lifecycle: pairing, connection state,
// inbound event normalization, and outbound sends.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	client    *whatsmeow.Client
	container *sqlstore.Container

	mu           sync.RWMutex
	state        State
	authArtifact string
	listeners    []Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. No connection is made until Initialize.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateDisconnected,
	}
}

// Subscribe registers a listener for transport events. Listeners are
// invoked in registration order on the event handler goroutine.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AuthArtifact returns the pending pairing code, or empty when none is
// outstanding.
func (m *Manager) AuthArtifact() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authArtifact
}

// Initialize opens the session store and connects. When the device has no
// stored credentials the pairing code is delivered through OnAuthArtifact
// and the session stays in StateAuthenticating until scanned. Calling
// Initialize while already connecting or connected is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateReady || m.state == StateAuthenticating {
		m.mu.Unlock()
		return nil
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	// A previous failed or logged-out session may have left a store open.
	m.closeStore()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	sessionPath := expandPath(m.cfg.SessionPath)
	if err := os.MkdirAll(filepath.Dir(sessionPath), 0o755); err != nil {
		m.setState(StateDisconnected)
		return &InitError{Stage: "session directory", Err: err}
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", sessionPath), waLog.Noop)
	if err != nil {
		m.setState(StateDisconnected)
		return &InitError{Stage: "session store", Err: err}
	}
	m.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		m.closeStore()
		m.setState(StateDisconnected)
		return &InitError{Stage: "device", Err: err}
	}

	m.client = whatsmeow.NewClient(device, waLog.Noop)
	m.client.AddEventHandler(m.handleEvent)

	if m.client.Store.ID == nil {
		qrChan, err := m.client.GetQRChannel(ctx)
		if err != nil {
			m.closeStore()
			m.setState(StateDisconnected)
			return &InitError{Stage: "pairing channel", Err: err}
		}
		if err := m.client.Connect(); err != nil {
			m.closeStore()
			m.setState(StateDisconnected)
			return &InitError{Stage: "connect", Err: err}
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-qrChan:
					if !ok {
						return
					}
					switch evt.Event {
					case "code":
						m.mu.Lock()
						m.authArtifact = evt.Code
						m.mu.Unlock()
						m.logger.Info("pairing code issued, scan to log in")
						m.dispatch(func(l Listener) {
							if l.OnAuthArtifact != nil {
								l.OnAuthArtifact(evt.Code)
							}
						})
					case "success":
						m.mu.Lock()
						m.authArtifact = ""
						m.mu.Unlock()
					}
				}
			}
		}()
	} else {
		if err := m.client.Connect(); err != nil {
			m.closeStore()
			m.setState(StateDisconnected)
			return &InitError{Stage: "connect", Err: err}
		}
	}

	return nil
}

// Disconnect tears down the session. Safe to call in any state.
func (m *Manager) Disconnect() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	if m.client != nil {
		m.client.Disconnect()
	}
	m.closeStore()
	m.setState(StateDisconnected)
}

// closeStore closes the session store if one is open. Safe to call twice;
// the container is cleared so a re-initialize never double-closes.
func (m *Manager) closeStore() {
	if m.container == nil {
		return
	}
	if err := m.container.Close(); err != nil {
		m.logger.Warn("failed to close session store", "error", err)
	}
	m.container = nil
	m.client = nil
}

// SendText sends a plain text message to the given phone number. The number
// is normalized before addressing.
func (m *Manager) SendText(ctx context.Context, phone, body string) error {
	if m.State() != StateReady {
		return ErrNotConnected
	}

	normalized := NormalizePhone(phone, m.cfg.CountryCode)
	if normalized == "" {
		return fmt.Errorf("invalid phone number %q", phone)
	}

	waMsg := &waE2E.Message{Conversation: proto.String(body)}
	if _, err := m.client.SendMessage(ctx, phoneJID(normalized), waMsg); err != nil {
		return fmt.Errorf("send to %s: %w", normalized, err)
	}

	m.dispatch(func(l Listener) {
		if l.OnMessageSent != nil {
			l.OnMessageSent(normalized, body)
		}
	})
	return nil
}

// SimulateComposing shows the "typing" indicator to the given contact.
func (m *Manager) SimulateComposing(ctx context.Context, phone string) error {
	if m.State() != StateReady {
		return ErrNotConnected
	}

	normalized := NormalizePhone(phone, m.cfg.CountryCode)
	if normalized == "" {
		return fmt.Errorf("invalid phone number %q", phone)
	}

	return m.client.SendChatPresence(ctx, phoneJID(normalized),
		types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (m *Manager) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		m.setState(StateReady)
		m.logger.Info("connected to WhatsApp")
		m.dispatch(func(l Listener) {
			if l.OnReady != nil {
				l.OnReady()
			}
		})

	case *events.Disconnected:
		m.setState(StateDisconnected)
		m.logger.Warn("disconnected from WhatsApp")
		m.dispatch(func(l Listener) {
			if l.OnDisconnected != nil {
				l.OnDisconnected()
			}
		})

	case *events.LoggedOut:
		m.setState(StateAuthFailed)
		reason := fmt.Sprintf("%v", v.Reason)
		m.logger.Warn("logged out from WhatsApp", "reason", reason)
		m.dispatch(func(l Listener) {
			if l.OnAuthFailed != nil {
				l.OnAuthFailed(reason)
			}
		})

	case *events.Message:
		m.handleMessage(v)
	}
}

// handleMessage filters and normalizes an inbound message. Group chats,
// broadcasts, and the session's own sends are dropped here so the pipeline
// only ever sees direct contact messages.
func (m *Manager) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	if evt.Info.Chat.Server == types.BroadcastServer {
		return
	}

	body := extractText(evt)
	if body == "" {
		return
	}

	msg := &Message{
		ID:         evt.Info.ID,
		Sender:     NormalizePhone(evt.Info.Sender.User, m.cfg.CountryCode),
		SenderJID:  evt.Info.Sender.String(),
		SenderName: evt.Info.PushName,
		Body:       body,
		Timestamp:  evt.Info.Timestamp,
	}
	if msg.SenderName == "" {
		msg.SenderName = msg.Sender
	}

	m.dispatch(func(l Listener) {
		if l.OnMessage != nil {
			l.OnMessage(msg)
		}
	})
}

func extractText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if evt.Message.Conversation != nil {
		return evt.Message.GetConversation()
	}
	if evt.Message.ExtendedTextMessage != nil {
		return evt.Message.ExtendedTextMessage.GetText()
	}
	return ""
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) dispatch(fn func(Listener)) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
