// Package push delivers notification payloads to browser push endpoints
// using the Web Push protocol with VAPID authentication.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"fridgemind/internal/shared"
)

// VAPIDConfig holds the VAPID key pair and contact address presented to
// push services.
type VAPIDConfig struct {
	Subscriber string
	PublicKey  string
	PrivateKey string
	// TTL is how long (seconds) the push service may retain an
	// undelivered message.
	TTL int
}

// EnsureVAPIDKeys returns the configured key pair, generating a fresh one
// when either half is missing. Generated keys are logged so the operator
// can persist them; until then every restart invalidates existing
// subscriptions.
func EnsureVAPIDKeys(publicKey, privateKey string, log *slog.Logger) (string, string, error) {
	if publicKey != "" && privateKey != "" {
		return publicKey, privateKey, nil
	}

	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", shared.Wrap(err, "generate VAPID keys")
	}
	log.Warn("VAPID keys not configured, generated a new pair",
		slog.String("vapid_public_key", pub),
	)
	log.Info("add VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY to the environment to persist subscriptions across restarts")
	return pub, priv, nil
}

// WebPush sends payloads over the Web Push protocol.
type WebPush struct {
	cfg    VAPIDConfig
	client *http.Client
}

// Option configures a WebPush transport.
type Option func(*WebPush)

// WithHTTPClient overrides the HTTP client used for push service requests.
func WithHTTPClient(c *http.Client) Option {
	return func(w *WebPush) { w.client = c }
}

// NewWebPush creates a Web Push transport with the given VAPID config.
func NewWebPush(cfg VAPIDConfig, opts ...Option) *WebPush {
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}
	w := &WebPush{cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send delivers payload to the endpoint described by subscription, which
// must be the JSON produced by the browser's PushManager. Malformed
// subscriptions, expired endpoints (404/410 from the push service) and
// push service rejections all surface as transport errors.
func (w *WebPush) Send(ctx context.Context, subscription json.RawMessage, payload []byte) error {
	var sub webpush.Subscription
	if err := json.Unmarshal(subscription, &sub); err != nil {
		return shared.MarkKind(shared.Wrap(err, "decode subscription"), shared.KindTransport)
	}
	if sub.Endpoint == "" {
		return shared.MarkKind(fmt.Errorf("subscription has no endpoint"), shared.KindTransport)
	}

	opts := &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.PublicKey,
		VAPIDPrivateKey: w.cfg.PrivateKey,
		TTL:             w.cfg.TTL,
	}
	if w.client != nil {
		opts.HTTPClient = w.client
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, opts)
	if err != nil {
		return shared.MarkKind(shared.Wrap(err, "send web push"), shared.KindTransport)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return shared.MarkKind(fmt.Errorf("push endpoint expired (status %d)", resp.StatusCode), shared.KindTransport)
	case resp.StatusCode >= 400:
		return shared.MarkKind(fmt.Errorf("push service rejected message (status %d)", resp.StatusCode), shared.KindTransport)
	}
	return nil
}
