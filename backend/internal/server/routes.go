package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/Warpcall/backend/internal/config"
	"github.com/BioHazard786/Warpcall/backend/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Hub      *signaling.Hub
	Registry *signaling.Registry
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

// NewRouter builds the HTTP surface of the signaling server.
func NewRouter(deps Deps, cfg config.WebSocketConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "Signaling server is healthy.")
	})

	router.GET("/rooms", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, protocol.RoomList{
			Capacity: deps.Registry.Capacity(),
			Rooms:    deps.Registry.Snapshots(),
		})
	})

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	router.GET("/ws", ServeWs(deps.Hub, deps.Log, cfg))

	return router
}

// ServeWs returns a handler that upgrades the request and hands the new
// member to the hub.
func ServeWs(hub *signaling.Hub, log *slog.Logger, cfg config.WebSocketConfig) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}

	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := signaling.NewClient(uuid.NewString(), hub, conn, log, signaling.ClientOptions{
			SendQueue:      cfg.SendQueue,
			MaxMessageSize: cfg.MaxMessageSize,
		})

		if !hub.Register(client) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

// checkOrigin allows every origin when allowed is empty. Non-browser
// clients send no Origin header and are always accepted.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.Debug("http request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
