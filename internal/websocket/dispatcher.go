package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"pulsewire/internal/apps"
	"pulsewire/internal/channels"
	"pulsewire/internal/protocol"
	"pulsewire/internal/statistics"
)

// Dispatcher is the connection protocol state machine: it wires socket
// lifecycle events (open, message, close, error) to the channel manager and
// the wire codec. All collaborators are injected; the dispatcher holds no
// global state.
type Dispatcher struct {
	registry apps.Registry
	manager  *channels.Manager
	stats    statistics.Collector
	hooks    channels.LifecycleHooks
}

func NewDispatcher(registry apps.Registry, manager *channels.Manager, stats statistics.Collector, hooks channels.LifecycleHooks) *Dispatcher {
	if stats == nil {
		stats = statistics.NoopCollector{}
	}
	if hooks == nil {
		hooks = channels.NoopHooks{}
	}
	return &Dispatcher{
		registry: registry,
		manager:  manager,
		stats:    stats,
		hooks:    hooks,
	}
}

// HandleOpen resolves the app key presented at handshake and completes the
// connection. A failure is returned as *protocol.Error (unknown app key,
// over capacity) and is fatal to the connection; on success the client has
// its app attached and has been sent pusher:connection_established.
func (d *Dispatcher) HandleOpen(ctx context.Context, c *Client, appKey string) error {
	app, err := d.registry.FindByKey(ctx, appKey)
	if err != nil {
		if errors.Is(err, apps.ErrAppNotFound) {
			return protocol.NewUnknownAppKeyError(appKey)
		}
		return err
	}

	if app.Capacity > 0 && d.manager.ConnectionCount(app.ID) >= app.Capacity {
		slog.Warn("Connection rejected, app over capacity", "appId", app.ID, "capacity", app.Capacity)
		return protocol.NewOverCapacityError()
	}

	c.setApp(app)
	d.manager.AddConnection(c)
	d.stats.ConnectionOpened(app.ID)

	slog.Info("Connection established", "appId", app.ID, "socketId", c.socketID)
	return c.Send(protocol.NewConnectionEstablished(c.socketID))
}

// HandleMessage decodes one inbound frame and dispatches it by event-name
// prefix. Malformed frames and unknown events are dropped without closing
// the connection; one misbehaving message never takes the socket down.
func (d *Dispatcher) HandleMessage(ctx context.Context, c *Client, raw []byte) {
	if c.app == nil {
		return
	}
	d.stats.WebSocketMessage(c.app.ID)

	msg, err := protocol.Decode(raw)
	if err != nil {
		slog.Debug("Dropping undecodable frame", "socketId", c.socketID, "error", err)
		return
	}

	switch msg.Kind() {
	case protocol.KindProtocol:
		d.handleProtocolMessage(ctx, c, msg)
	case protocol.KindClient:
		d.handleClientEvent(ctx, c, msg)
	default:
		// Not ours, not a client event. Ignored.
	}
}

func (d *Dispatcher) handleProtocolMessage(ctx context.Context, c *Client, msg protocol.Message) {
	switch msg.Event {
	case protocol.EventPing:
		//nolint:errcheck
		c.Send(protocol.NewPong())

	case protocol.EventSubscribe:
		payload, err := protocol.ParseSubscribe(msg)
		if err != nil {
			slog.Debug("Dropping malformed subscribe", "socketId", c.socketID, "error", err)
			return
		}
		if err := d.manager.Subscribe(ctx, c, payload); err != nil {
			d.HandleError(c, err)
		}

	case protocol.EventUnsubscribe:
		payload, err := protocol.ParseUnsubscribe(msg)
		if err != nil {
			slog.Debug("Dropping malformed unsubscribe", "socketId", c.socketID, "error", err)
			return
		}
		d.manager.Unsubscribe(ctx, c, payload.Channel)

	default:
		// Unknown pusher:* sub-events are ignored for forward compatibility.
	}
}

// handleClientEvent relays a client-* event to the other subscribers of the
// named channel. Tenants without client messages enabled have the event
// silently dropped; so do events for channels this process does not know.
func (d *Dispatcher) handleClientEvent(ctx context.Context, c *Client, msg protocol.Message) {
	app := c.app
	if !app.ClientMessagesEnabled || msg.Channel == "" {
		return
	}
	if d.manager.Find(app.ID, msg.Channel) == nil {
		return
	}

	d.manager.BroadcastToEveryoneExcept(ctx, app.ID, msg.Channel, msg, c.socketID, true)
	d.hooks.ClientEvent(app.ID, msg.Channel, msg.Event)
}

// HandleClose detaches a closing connection from every channel it joined,
// evicting any channel drained to zero, and records the closure.
func (d *Dispatcher) HandleClose(ctx context.Context, c *Client) {
	if c.app == nil {
		return
	}
	d.manager.RemoveConnection(ctx, c)
	d.stats.ConnectionClosed(c.app.ID)
	slog.Info("Connection closed", "appId", c.app.ID, "socketId", c.socketID)
}

// HandleError transmits structured protocol errors to the client; anything
// else is an internal fault that is logged and never reaches the wire.
func (d *Dispatcher) HandleError(c *Client, err error) {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		//nolint:errcheck
		c.Send(protocol.NewErrorMessage(perr))
		if perr.Fatal() {
			c.close()
		}
		return
	}
	slog.Error("Internal connection fault", "socketId", c.socketID, "error", err)
}

// ServeWS upgrades an HTTP request carrying an app key and drives the
// connection until it closes. The upgrade happens even for an unknown app
// key: the 4001 error must reach the client over the socket, as a plain
// HTTP rejection would leave Pusher clients retrying forever. On a failed
// handshake the error payload is written directly before the socket is torn
// down, since the write pump is not yet running.
func (d *Dispatcher) ServeWS(w http.ResponseWriter, r *http.Request, appKey string) {
	upgrader := DefaultUpgrader()
	if app, err := d.registry.FindByKey(r.Context(), appKey); err == nil {
		upgrader = NewUpgrader(app)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "appKey", appKey, "error", err)
		return
	}

	c := NewClient(conn)
	if openErr := d.HandleOpen(context.Background(), c, appKey); openErr != nil {
		var perr *protocol.Error
		if errors.As(openErr, &perr) {
			if data, encErr := protocol.Encode(protocol.NewErrorMessage(perr)); encErr == nil {
				//nolint:errcheck
				conn.WriteMessage(gorilla.TextMessage, data)
			}
		} else {
			slog.Error("Handshake failed", "appKey", appKey, "error", openErr)
		}
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(d)
}
