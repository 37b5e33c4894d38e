// Package api exposes the HTTP surface: subscription registration, item
// upserts, manual dispatch triggers and the vision labeling proxy.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"fridgemind/internal/store"
)

// Dispatcher is the slice of the notification dispatcher the handlers
// need.
type Dispatcher interface {
	SendToUser(ctx context.Context, id string) (int, error)
	SendAll(ctx context.Context) (int, error)
	NotifyDirect(ctx context.Context, id, title, body string) error
}

// Labeler produces item name hints from a base64-encoded image.
type Labeler interface {
	Annotate(ctx context.Context, imageBase64 string) ([]string, error)
}

// Options configures the router.
type Options struct {
	Logger     *slog.Logger
	Store      store.Store
	Dispatcher Dispatcher
	// Labeler may be nil when no vision API key is configured; the
	// /vision route then reports the feature as unavailable.
	Labeler        Labeler
	VAPIDPublicKey string
	// RateInterval is the per-client minimum interval on mutating
	// routes; zero disables rate limiting.
	RateInterval time.Duration
}

type server struct {
	log        *slog.Logger
	store      store.Store
	dispatcher Dispatcher
	labeler    Labeler
	publicKey  string
}

// NewRouter builds the gin engine with all routes and middleware
// attached.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &server{
		log:        log,
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		labeler:    opts.Labeler,
		publicKey:  opts.VAPIDPublicKey,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", s.health)
	r.GET("/vapidPublicKey", s.vapidPublicKey)

	mutating := r.Group("/")
	if opts.RateInterval > 0 {
		mutating.Use(NewRateLimiter(opts.RateInterval).Middleware())
	}
	mutating.POST("/subscribe", s.subscribe)
	mutating.POST("/upsert-items", s.upsertItems)
	mutating.POST("/send-now", s.sendNow)
	mutating.POST("/notify", s.notify)
	mutating.POST("/vision", s.vision)

	return r
}
