// Package ws pushes delivery tracking and offer-pool updates over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/events"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/resp"
	"github.com/kidoxdavid/eazyfoods-sub000/services"
	"github.com/kidoxdavid/eazyfoods-sub000/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// OrderViewer answers whether a principal may follow an order.
type OrderViewer interface {
	GetOrderDetail(ctx context.Context, p services.Principal, orderID uuid.UUID) (*services.OrderDetail, error)
}

type DriverLookup interface {
	Get(ctx context.Context, p services.Principal, id uuid.UUID) (*entity.Driver, error)
}

// Message is the frame every subscriber receives.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	topic topic
}

// topic is an order id for tracking clients and uuid.Nil for the offer feed.
type topic = uuid.UUID

var offerTopic = uuid.Nil

type delivery struct {
	topic topic
	frame []byte
}

// Hub fans events out to connected clients. Run must be started before
// handlers accept connections.
type Hub struct {
	mu         sync.RWMutex
	clients    map[topic]map[*client]bool
	broadcast  chan delivery
	register   chan *client
	unregister chan *client
	done       chan struct{}

	Orders   OrderViewer
	Drivers  DriverLookup
	Log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHub(orders OrderViewer, drivers DriverLookup, log *zap.Logger, allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[topic]map[*client]bool),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		Orders:     orders,
		Drivers:    drivers,
		Log:        log,
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || set[origin]
	}
}

// Run owns the client table until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = map[topic]map[*client]bool{}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.topic] == nil {
				h.clients[c.topic] = make(map[*client]bool)
			}
			h.clients[c.topic][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case d := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients[d.topic] {
				select {
				case c.send <- d.frame:
				default:
					// slow consumer
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c.topic][c]; !ok {
		return
	}
	delete(h.clients[c.topic], c)
	close(c.send)
	if len(h.clients[c.topic]) == 0 {
		delete(h.clients, c.topic)
	}
}

// Subscribers counts the live clients on an order, or on the offer feed
// for uuid.Nil.
func (h *Hub) Subscribers(orderID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[orderID])
}

func (h *Hub) publish(topic topic, typ string, data any) {
	frame, err := json.Marshal(Message{Type: typ, Data: data})
	if err != nil {
		h.Log.Error("ws_marshal_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- delivery{topic: topic, frame: frame}:
	case <-h.done:
	default:
		h.Log.Warn("ws_broadcast_dropped", zap.String("type", typ))
	}
}

// ----- services.OfferNotifier -----

func (h *Hub) NotifyOffer(_ context.Context, o services.Offer) {
	h.publish(offerTopic, "offer", o)
}

func (h *Hub) OfferTaken(_ context.Context, orderID uuid.UUID) {
	h.publish(offerTopic, "offer_taken", gin.H{"order_id": orderID})
}

// OnDeliveryEvent is the bus handler for tracking events.
func (h *Hub) OnDeliveryEvent(_ context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.DeliveryLocationUpdated:
		h.publish(ev.OrderID, ev.EventName(), ev)
	case events.DeliveryStatusChanged:
		h.publish(ev.OrderID, ev.EventName(), ev)
	}
	return nil
}

// Subscribe registers the hub's bus handlers.
func (h *Hub) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.NameDeliveryLocationUpdated, h.OnDeliveryEvent)
	bus.Subscribe(events.NameDeliveryStatusChanged, h.OnDeliveryEvent)
}

// ----- HTTP -----

func principal(c *gin.Context) services.Principal {
	return services.Principal{
		Role:      services.Role(utils.CurrentRole(c)),
		AccountID: utils.CurrentAccountID(c),
		SubjectID: utils.CurrentSubjectID(c),
	}
}

// TrackDelivery serves GET /ws/deliveries/:order_id to the customer who placed the order.
func (h *Hub) TrackDelivery(c *gin.Context) {
	orderID, err := utils.ParamUUID(c, "order_id")
	if err != nil {
		resp.Error(c, err)
		return
	}
	p := principal(c)
	if p.Role != services.RoleCustomer {
		resp.Error(c, apperr.Forbidden("delivery tracking is for the ordering customer"))
		return
	}
	detail, err := h.Orders.GetOrderDetail(c.Request.Context(), p, orderID)
	if err != nil {
		resp.Error(c, err)
		return
	}
	if detail.Order.CustomerID != p.SubjectID {
		resp.Error(c, apperr.Forbidden("delivery tracking is for the ordering customer"))
		return
	}
	h.serve(c, orderID)
}

// Offers serves GET /ws/offers to approved drivers.
func (h *Hub) Offers(c *gin.Context) {
	p := principal(c)
	if p.Role != services.RoleDriver {
		resp.Error(c, apperr.Forbidden("driver only"))
		return
	}
	d, err := h.Drivers.Get(c.Request.Context(), p, p.SubjectID)
	if err != nil {
		resp.Error(c, err)
		return
	}
	if !d.IsActive || d.VerificationStatus != entity.VerificationApproved {
		resp.Error(c, apperr.DriverNotEligible("not_approved"))
		return
	}
	h.serve(c, offerTopic)
}

func (h *Hub) serve(c *gin.Context, t topic) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), topic: t}
	select {
	case h.register <- cl:
	case <-h.done:
		_ = conn.Close()
		return
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(cl)
	}()
	h.readPump(cl)
	wg.Wait()
}

// readPump only watches for close and pong; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.Log.Debug("ws_write_failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
