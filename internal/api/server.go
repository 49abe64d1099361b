// Package api exposes the service façade over HTTP and WebSocket: the
// same RegisterAppStatus/ReadStatistics/RequestNodeRestart operations
// describes, plus a broadcast of every AppHealthStatus
// change to subscribed WebSocket clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/internal/metrics"
	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Facade is the subset of internal/facade.Facade the API wires up.
type Facade interface {
	RegisterAppStatus(ctx context.Context, name string, status types.AppStatus)
	ReadStatistics(appName string) (currentFailCount, totalFailures, totalLifecycles uint32, status types.AppErrorStatus)
	RequestNodeRestart(ctx context.Context, appName string) types.AppErrorStatus
	Subscribe(fn func(name string, status types.AppStatus)) (unsubscribe func())
}

// Collector is the subset of internal/metrics.Collector the status
// endpoint reads and the restart handler and AppHealthStatus subscriber
// feed.
type Collector interface {
	GetSnapshot() metrics.NodeSnapshot
	ObserveRestartRequest(status types.AppErrorStatus)
	ObserveAppStatus(status types.AppStatus)
}

// Server is the HTTP/WebSocket front end onto a Facade.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	log       *logger.Logger
	cfg       *config.Config
	facade    Facade
	collector Collector
	auth      *AuthMiddleware
	port      int
	unsub     func()

	wsClients   map[*websocket.Conn]*WSClient
	wsClientsMu sync.RWMutex
	wsBroadcast chan WSMessage
	wsUpgrader  websocket.Upgrader
}

// WSClient is one connected WebSocket subscriber.
type WSClient struct {
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// WSMessage is the envelope every WebSocket frame carries.
type WSMessage struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
	Time  int64       `json:"timestamp"`
}

// WSSubscribeRequest is a client's subscribe/unsubscribe request.
type WSSubscribeRequest struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// appStatusUpdate is what gets broadcast on the "app_status" topic.
type appStatusUpdate struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// NewServer builds a Server around facade and collector. collector may
// be nil if metrics are disabled.
func NewServer(cfg *config.Config, facade Facade, collector Collector, log *logger.Logger) *Server {
	if cfg.Logging.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	port := cfg.API.Port
	if port <= 0 {
		port = 8180
	}

	s := &Server{
		router:      router,
		log:         log,
		cfg:         cfg,
		facade:      facade,
		collector:   collector,
		auth:        NewAuthMiddleware(cfg.API.JWTSecret, log),
		port:        port,
		wsClients:   make(map[*websocket.Conn]*WSClient),
		wsBroadcast: make(chan WSMessage, 256),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	go s.handleWSBroadcast()

	if facade != nil {
		s.unsub = facade.Subscribe(s.onAppHealthStatus)
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	v1 := s.router.Group("/api/v1")
	v1.GET("/version", s.getVersion)
	v1.GET("/status", s.getStatus)
	v1.GET("/apps/:name/stats", s.getAppStats)

	protected := v1.Group("")
	protected.Use(s.auth.Authenticate())
	protected.POST("/apps/:name/status", s.registerAppStatus)
	protected.POST("/apps/:name/restart", s.requestNodeRestart)

	v1.GET("/ws", s.handleWebSocket)
}

// Start launches the HTTP server in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.log.Info("api: server listening", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api: server stopped", "error", err.Error())
		}
	}()

	return nil
}

// Stop shuts down the HTTP server and unsubscribes from the facade.
func (s *Server) Stop() error {
	if s.unsub != nil {
		s.unsub()
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("api: graceful shutdown failed", "error", err.Error())
		return err
	}
	s.log.Info("api: server stopped")
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readyHandler(c *gin.Context) {
	if s.facade == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "message": "facade not attached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"api": "v1", "component": "nhm"})
}

func (s *Server) getStatus(c *gin.Context) {
	status := gin.H{
		"facade_attached": s.facade != nil,
		"metrics_enabled": s.collector != nil,
	}
	if s.collector != nil {
		status["snapshot"] = s.collector.GetSnapshot()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getAppStats(c *gin.Context) {
	name := c.Param("name")
	if s.facade == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "facade not attached"})
		return
	}

	current, total, lifecycles, status := s.facade.ReadStatistics(name)
	c.JSON(http.StatusOK, gin.H{
		"name":             name,
		"current_failures": current,
		"total_failures":   total,
		"total_lifecycles": lifecycles,
		"status":           status.String(),
	})
}

func (s *Server) registerAppStatus(c *gin.Context) {
	name := c.Param("name")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := parseAppStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.facade == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "facade not attached"})
		return
	}

	s.facade.RegisterAppStatus(c.Request.Context(), name, status)
	c.JSON(http.StatusAccepted, gin.H{"name": name, "status": status.String()})
}

func (s *Server) requestNodeRestart(c *gin.Context) {
	name := c.Param("name")
	if s.facade == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "facade not attached"})
		return
	}

	result := s.facade.RequestNodeRestart(c.Request.Context(), name)
	if s.collector != nil {
		s.collector.ObserveRestartRequest(result)
	}
	code := http.StatusOK
	if result != types.AppErrorOk {
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{"name": name, "result": result.String()})
}

func parseAppStatus(s string) (types.AppStatus, error) {
	switch s {
	case "failed":
		return types.AppStatusFailed, nil
	case "restarting":
		return types.AppStatusRestarting, nil
	case "ok":
		return types.AppStatusOk, nil
	default:
		return 0, fmt.Errorf("unknown app status %q", s)
	}
}

// onAppHealthStatus is the facade.Subscriber passed to Subscribe; it fans
// every status change out to WebSocket clients on the "app_status" topic.
func (s *Server) onAppHealthStatus(name string, status types.AppStatus) {
	if s.collector != nil {
		s.collector.ObserveAppStatus(status)
	}
	msg := WSMessage{
		Type:  "app_status",
		Topic: "app_status",
		Data:  appStatusUpdate{Name: name, Status: status.String()},
		Time:  time.Now().Unix(),
	}
	select {
	case s.wsBroadcast <- msg:
	default:
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("api: websocket upgrade failed", "error", err.Error())
		return
	}

	client := &WSClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}

	s.wsClientsMu.Lock()
	s.wsClients[conn] = client
	s.wsClientsMu.Unlock()

	s.log.Info("api: websocket client connected", "remote_addr", conn.RemoteAddr().String())

	client.writeMessage(WSMessage{
		Type:  "connected",
		Topic: "system",
		Data:  map[string]interface{}{"topics": []string{"app_status"}},
		Time:  time.Now().Unix(),
	})

	go s.handleWSRead(client)
	go s.handleWSWrite(client)
}

func (s *Server) handleWSRead(client *WSClient) {
	defer func() {
		s.removeWSClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Error("api: websocket read error", "error", err.Error())
			}
			break
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.log.Warn("api: invalid websocket message", "error", err.Error())
			continue
		}
		s.handleWSSubscription(client, &req)
	}
}

func (s *Server) handleWSWrite(client *WSClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWSBroadcast() {
	for msg := range s.wsBroadcast {
		s.wsClientsMu.RLock()
		for _, client := range s.wsClients {
			client.mu.RLock()
			subscribed := client.subscriptions[msg.Topic]
			client.mu.RUnlock()
			if subscribed {
				client.writeMessage(msg)
			}
		}
		s.wsClientsMu.RUnlock()
	}
}

var validWSTopics = map[string]bool{"app_status": true}

func (s *Server) handleWSSubscription(client *WSClient, req *WSSubscribeRequest) {
	client.mu.Lock()
	defer client.mu.Unlock()

	for _, topic := range req.Topics {
		if !validWSTopics[topic] {
			s.log.Warn("api: invalid subscription topic", "topic", topic)
			continue
		}

		switch req.Action {
		case "subscribe":
			client.subscriptions[topic] = true
		case "unsubscribe":
			delete(client.subscriptions, topic)
		}
	}
}

func (s *Server) removeWSClient(client *WSClient) {
	s.wsClientsMu.Lock()
	defer s.wsClientsMu.Unlock()

	if _, ok := s.wsClients[client.conn]; ok {
		delete(s.wsClients, client.conn)
		close(client.send)
		s.log.Info("api: websocket client disconnected", "remote_addr", client.conn.RemoteAddr().String())
	}
}

func (client *WSClient) writeMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("api: request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}
