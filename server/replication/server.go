package replication

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/middleware"
	"github.com/andydunstall/mergedb/pkg/protocol"
	mergedbwebsocket "github.com/andydunstall/mergedb/pkg/websocket"
)

// maxGossipMessageSize is the maximum size of a gossip request read from a
// peer.
const maxGossipMessageSize = 4 << 20

// Server exposes the replication service over HTTP.
//
// Clients send PropagateData requests as JSON to '/v1/propagate', and peers
// push changes over a WebSocket connection to '/v1/gossip'.
type Server struct {
	service *Service

	httpServer *http.Server

	websocketUpgrader *websocket.Upgrader

	// peerConns contains the open peer connections, which are closed on
	// shutdown since the HTTP server doesn't track hijacked connections.
	peerConns map[*mergedbwebsocket.Conn]struct{}

	// mu protects the above fields.
	mu sync.Mutex

	metrics *middleware.Metrics

	logger log.Logger
}

func NewServer(service *Service, logger log.Logger) *Server {
	logger = logger.WithSubsystem("replication.server")

	router := gin.New()
	server := &Server{
		service: service,
		httpServer: &http.Server{
			Handler:  router,
			ErrorLog: logger.StdLogger(zapcore.WarnLevel),
		},
		websocketUpgrader: &websocket.Upgrader{},
		peerConns:         make(map[*mergedbwebsocket.Conn]struct{}),
		metrics:           middleware.NewMetrics("replication_http"),
		logger:            logger,
	}

	// Recover from panics.
	router.Use(gin.CustomRecoveryWithWriter(nil, server.panicRoute))

	router.Use(middleware.NewLogger(logger))
	router.Use(server.metrics.Handler())

	server.registerRoutes(router)

	return server
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(
		"starting replication server",
		zap.String("addr", ln.Addr().String()),
	)

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown attempts to gracefully shutdown the server by waiting for pending
// requests to complete, then closes any open peer connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for conn := range s.peerConns {
		conn.Close()
	}
	s.peerConns = nil
	s.mu.Unlock()

	return err
}

func (s *Server) Metrics() *middleware.Metrics {
	return s.metrics
}

func (s *Server) Register(registry *prometheus.Registry) {
	s.metrics.Register(registry)
	s.service.Metrics().Register(registry)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	v1.GET("/health", s.healthRoute)
	v1.POST("/propagate", s.propagateRoute)
	v1.GET("/gossip", s.gossipRoute)
}

func (s *Server) healthRoute(c *gin.Context) {
	c.Status(http.StatusOK)
}

// propagateRoute handles client PropagateData requests.
func (s *Server) propagateRoute(c *gin.Context) {
	var req protocol.PropagateDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &protocol.PropagateDataResponse{
			Error: fmt.Sprintf("%s: %s", ErrInvalidArgument, err),
		})
		return
	}

	resp, err := s.service.PropagateData(&req)
	if err != nil {
		c.JSON(statusCode(err), &protocol.PropagateDataResponse{
			Error: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// gossipRoute handles WebSocket connections from peers pushing changes.
//
// Requests on a connection are handled in order, with one response for
// each request.
func (s *Server) gossipRoute(c *gin.Context) {
	wsConn, err := s.websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade replies to the client so nothing else to do.
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}
	conn := mergedbwebsocket.New(wsConn)
	defer conn.Close()

	conn.SetReadLimit(maxGossipMessageSize)

	if !s.addPeerConn(conn) {
		return
	}
	defer s.removePeerConn(conn)

	s.logger.Debug("peer connected", zap.String("client-ip", c.ClientIP()))
	defer s.logger.Debug("peer disconnected", zap.String("client-ip", c.ClientIP()))

	for {
		var req protocol.GossipChangesRequest
		if err := conn.ReadMessage(&req); err != nil {
			if !isClosed(err) {
				s.logger.Warn(
					"failed to read gossip request",
					zap.String("client-ip", c.ClientIP()),
					zap.Error(err),
				)
			}
			return
		}

		resp := s.service.GossipChanges(&req)
		if err := conn.WriteMessage(resp); err != nil {
			s.logger.Warn(
				"failed to write gossip response",
				zap.String("client-ip", c.ClientIP()),
				zap.Error(err),
			)
			return
		}
	}
}

// addPeerConn adds the connection to the set of open connections. Returns
// false if the server is shutting down.
func (s *Server) addPeerConn(conn *mergedbwebsocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peerConns == nil {
		return false
	}
	s.peerConns[conn] = struct{}{}
	return true
}

func (s *Server) removePeerConn(conn *mergedbwebsocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peerConns, conn)
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"handler panic",
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

// statusCode maps a PropagateData error to a HTTP status code.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, crdt.ErrTagNotPresent):
		return http.StatusNotFound
	case errors.Is(err, crdt.ErrTypeMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func isClosed(err error) bool {
	return websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
	) || errors.Is(err, net.ErrClosed)
}

func init() {
	// Disable Gin debug logs.
	gin.SetMode(gin.ReleaseMode)
}
