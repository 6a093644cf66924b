package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type baseHub struct {
	name   string
	logger Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[int64]*websocket.Conn
	locks map[int64]*sync.Mutex

	onMessage func(id int64, data []byte)
}

func newBaseHub(name string, logger Logger) *baseHub {
	return &baseHub{
		name:   name,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[int64]*websocket.Conn),
		locks: make(map[int64]*sync.Mutex),
	}
}

func (h *baseHub) serveWS(w http.ResponseWriter, r *http.Request, id int64) {
	if id == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("%s ws upgrade failed: %v", h.name, err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[id]; ok {
		_ = old.Close()
	}
	h.conns[id] = conn
	if _, ok := h.locks[id]; !ok {
		h.locks[id] = &sync.Mutex{}
	}
	h.mu.Unlock()

	h.logger.Infof("%s %d connected", h.name, id)

	go h.pingLoop(id, conn)
	go h.readLoop(id, conn)
}

func (h *baseHub) pingLoop(id int64, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !h.connected(id, conn) {
			return
		}
		h.safeWrite(id, func(c *websocket.Conn) error {
			return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *baseHub) readLoop(id int64, conn *websocket.Conn) {
	defer h.closeConn(id, conn)

	conn.SetReadLimit(16 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(message)), "ping") {
			h.safeWrite(id, func(c *websocket.Conn) error {
				return c.WriteMessage(websocket.TextMessage, []byte("pong"))
			})
			continue
		}
		if h.onMessage != nil {
			h.onMessage(id, message)
		}
	}
}

func (h *baseHub) connected(id int64, conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id] == conn
}

func (h *baseHub) closeConn(id int64, conn *websocket.Conn) {
	_ = conn.Close()
	h.mu.Lock()
	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		delete(h.locks, id)
	}
	h.mu.Unlock()
}

func (h *baseHub) safeWrite(id int64, fn func(*websocket.Conn) error) bool {
	h.mu.RLock()
	conn := h.conns[id]
	mu := h.locks[id]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return false
	}

	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(conn); err != nil {
		h.logger.Errorf("%s %d write failed: %v", h.name, id, err)
		h.closeConn(id, conn)
		return false
	}
	return true
}

func (h *baseHub) push(id int64, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("%s marshal failed: %v", h.name, err)
		return false
	}
	return h.safeWrite(id, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})
}

// Message is the envelope written to sockets.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Socket message types.
const (
	MessageJobOffer = "job_offer"
	MessageJobTaken = "job_taken"
	MessageLocation = "location"
)

// LocationSink receives positions reported over the technician socket.
type LocationSink interface {
	UpdateLocation(ctx context.Context, technicianID int64, lat, lon float64) error
}

// TechnicianHub manages technician sockets keyed by technician profile id.
type TechnicianHub struct {
	*baseHub
	sink LocationSink
}

// NewTechnicianHub constructs the hub. sink may be nil.
func NewTechnicianHub(logger Logger, sink LocationSink) *TechnicianHub {
	h := &TechnicianHub{baseHub: newBaseHub("technician", logger), sink: sink}
	h.onMessage = h.handleMessage
	return h
}

// SetLocationSink wires the sink after construction.
func (h *TechnicianHub) SetLocationSink(sink LocationSink) { h.sink = sink }

// ServeWS upgrades an authenticated technician request.
func (h *TechnicianHub) ServeWS(w http.ResponseWriter, r *http.Request, technicianID int64) {
	h.serveWS(w, r, technicianID)
}

// Push sends payload to a technician if connected.
func (h *TechnicianHub) Push(technicianID int64, payload interface{}) bool {
	return h.push(technicianID, payload)
}

type locationMessage struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (h *TechnicianHub) handleMessage(id int64, data []byte) {
	var msg locationMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MessageLocation {
		return
	}
	if h.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.sink.UpdateLocation(ctx, id, msg.Lat, msg.Lon); err != nil {
		h.logger.Errorf("technician %d location update: %v", id, err)
	}
}

// CustomerHub manages customer sockets keyed by user id.
type CustomerHub struct {
	*baseHub
}

func NewCustomerHub(logger Logger) *CustomerHub {
	return &CustomerHub{newBaseHub("customer", logger)}
}

// ServeWS upgrades an authenticated customer request.
func (h *CustomerHub) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) {
	h.serveWS(w, r, userID)
}

// Push sends payload to a customer if connected.
func (h *CustomerHub) Push(userID int64, payload interface{}) bool {
	return h.push(userID, payload)
}

// Sockets delivers notifications to connected clients. Offline clients are
// skipped; push covers them.
type Sockets struct {
	Technicians *TechnicianHub
	Customers   *CustomerHub
}

func (s Sockets) NotifyTechnicians(_ context.Context, ids []int64, job JobSummary) error {
	for _, id := range ids {
		s.Technicians.Push(id, Message{Type: MessageJobOffer, Data: job})
	}
	return nil
}

func (s Sockets) NotifyCustomer(_ context.Context, customerID int64, ev Event) error {
	s.Customers.Push(customerID, Message{Type: ev.Type, Data: ev})
	return nil
}

func (s Sockets) NotifyJobTaken(_ context.Context, ids []int64, bookingID int64) error {
	for _, id := range ids {
		s.Technicians.Push(id, Message{Type: MessageJobTaken, Data: map[string]int64{"booking_id": bookingID}})
	}
	return nil
}
