package liveserver

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"signal_gateway/internal/core"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	websocketActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signal_gateway_event_stream_connections",
		Help: "Current number of event stream websocket connections",
	})

	websocketRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_gateway_event_stream_rejected_total",
		Help: "Total number of rejected event stream connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(websocketActiveConnections)
	prometheus.MustRegister(websocketRejectedTotal)
}

// Server upgrades /ws/events requests and pumps hub messages to them
type Server struct {
	hub            *Hub
	logger         core.ILogger
	upgrader       websocket.Upgrader
	allowedOrigins []string

	connSemaphore chan struct{}

	ipLimiters sync.Map // map[string]*rate.Limiter
	rateLimit  rate.Limit
	rateBurst  int
}

// NewServer creates the websocket handler. maxConnections <= 0 defaults to 50.
func NewServer(hub *Hub, logger core.ILogger, allowedOrigins []string, maxConnections int) *Server {
	if maxConnections <= 0 {
		maxConnections = 50
	}
	s := &Server{
		hub:            hub,
		logger:         logger.WithField("component", "event_stream"),
		allowedOrigins: allowedOrigins,
		connSemaphore:  make(chan struct{}, maxConnections),
		rateLimit:      1,
		rateBurst:      5,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetRateLimit updates the per-IP connection rate limit
func (s *Server) SetRateLimit(limit float64, burst int) {
	s.rateLimit = rate.Limit(limit)
	s.rateBurst = burst
	s.ipLimiters = sync.Map{}
}

// checkOrigin allows "*", exact scheme://host matches, and bare hostnames
// matching any scheme and port
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		s.logger.Warn("Rejected event stream connection without Origin", "remote_addr", r.RemoteAddr)
		websocketRejectedTotal.WithLabelValues("missing_origin").Inc()
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		websocketRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}
	originStr := parsed.Scheme + "://" + parsed.Host

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || originStr == allowed || parsed.Hostname() == allowed {
			return true
		}
	}

	s.logger.Warn("Rejected event stream connection from unauthorized origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr)
	websocketRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.ipLimiter(ip).Allow() {
		s.logger.Warn("IP rate limit exceeded", "ip", ip)
		websocketRejectedTotal.WithLabelValues("rate_limit").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	select {
	case s.connSemaphore <- struct{}{}:
		websocketActiveConnections.Inc()
		defer func() {
			<-s.connSemaphore
			websocketActiveConnections.Dec()
		}()
	default:
		websocketRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := NewClient(uuid.NewString())
	if !s.hub.Register(client) {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readPump(conn)
	}()
	s.writePump(conn, client, done)

	s.hub.Unregister(client)
	_ = conn.Close()
	<-done
	s.logger.Debug("Client disconnected", "client_id", client.id)
}

func (s *Server) writePump(conn *websocket.Conn, client *Client, readerDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Warn("Write error", "client_id", client.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}

// readPump discards client frames and keeps the pong deadline fresh
func (s *Server) readPump(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ipLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	actual, _ := s.ipLimiters.LoadOrStore(ip, rate.NewLimiter(s.rateLimit, s.rateBurst))
	return actual.(*rate.Limiter)
}
