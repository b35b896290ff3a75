// Package bridge exposes the broker over local HTTP so a browser extension
// can use the desktop app as its background.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memit/internal/broker"
	"memit/internal/events"
	"memit/internal/logging"
)

// Broker is the part of broker.Broker the bridge forwards to.
type Broker interface {
	Request(ctx context.Context, msg broker.Message) (broker.Reply, error)
	Push(msg broker.Message)
	Subscribe(fn func(broker.Message)) func()
}

type Options struct {
	Addr          string
	RatePerSecond float64
	Burst         int
	// RequestTimeout bounds how long a POST waits for a handler. Zero waits
	// until the client goes away.
	RequestTimeout time.Duration
}

type Server struct {
	broker  Broker
	opts    Options
	log     *zap.Logger
	engine  *gin.Engine
	hub     *hub
	limiter *clientLimiter

	unsubscribe func()
}

func New(b Broker, opts Options) *Server {
	s := &Server{
		broker:  b,
		opts:    opts,
		log:     logging.Named("bridge"),
		limiter: newClientLimiter(opts.RatePerSecond, opts.Burst),
	}
	s.hub = newHub(s.log)

	engine := gin.New()
	engine.Use(recovery(s.log), requestLogger(s.log))

	api := engine.Group("/api")
	api.GET("/health", s.health)
	api.GET("/events", s.stream)
	api.POST("/messages", s.limiter.middleware(), s.postMessage)

	s.engine = engine
	s.unsubscribe = b.Subscribe(func(msg broker.Message) {
		m := msg
		s.hub.broadcast(Frame{Kind: FramePush, Message: &m})
	})
	return s
}

// Close stops relaying pushes and disconnects stream clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.closeAll()
}

// Handler returns the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.pruneLimiters(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("bridge listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Publish forwards a UI event to every stream client.
func (s *Server) Publish(name string, evt events.Event) {
	e := evt
	s.hub.broadcast(Frame{Kind: FrameEvent, Name: name, Event: &e})
}

func (s *Server) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.prune(5 * time.Minute)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": s.hub.count()})
}

func (s *Server) postMessage(c *gin.Context) {
	var msg broker.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message: " + err.Error()})
		return
	}
	if !msg.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
		return
	}

	if msg.Type == broker.KindOpenModal {
		s.broker.Push(msg)
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
		return
	}

	ctx := c.Request.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	reply, err := s.broker.Request(ctx, msg)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, broker.ErrNoReply) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "no reply"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("stream upgrade", zap.Error(err))
		return
	}
	s.hub.serve(conn)
}
