// Package githubin handles incoming GitHub webhook events.
package githubin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/otel/trace"
)

// Syncer pulls the tracked repository once. The git clone runs its sync
// callbacks (auto-apply) when the revision moved.
type Syncer interface {
	Sync(ctx context.Context) error
}

// WebhookHandler turns push events into an immediate sync of the stack clone.
type WebhookHandler struct {
	syncer        Syncer
	ref           string
	webhookSecret []byte
	logger        *slog.Logger
	sem           chan struct{}
}

// NewWebhookHandler creates a new webhook handler. ref is the tracked branch
// or tag; when empty, pushes to the repository's default branch match.
func NewWebhookHandler(s Syncer, ref, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		syncer:        s,
		ref:           ref,
		webhookSecret: []byte(secret),
		logger:        logger,
		sem:           make(chan struct{}, 1),
	}
}

// ServeHTTP validates the webhook signature, parses the event, and syncs in
// a goroutine (responds 202 immediately).
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := gogithub.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		h.logger.Error("invalid webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := gogithub.ParseWebHook(gogithub.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("failed to parse webhook", "error", err)
		http.Error(w, "failed to parse webhook", http.StatusBadRequest)
		return
	}

	push, ok := event.(*gogithub.PushEvent)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if push.GetDeleted() || !h.tracks(push) {
		h.logger.Debug("ignoring push", "ref", push.GetRef(), "deleted", push.GetDeleted())
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("processing push",
		"repo", push.GetRepo().GetFullName(),
		"ref", push.GetRef(),
		"after", push.GetAfter(),
	)

	// GitHub gives up after 10s; only the trace is carried over to the sync.
	ctx := trace.ContextWithRemoteSpanContext(context.Background(),
		trace.SpanContextFromContext(r.Context()),
	)
	go func() {
		h.sem <- struct{}{}
		defer func() { <-h.sem }()
		if err := h.syncer.Sync(ctx); err != nil {
			h.logger.Error("webhook sync failed", "ref", push.GetRef(), "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (h *WebhookHandler) tracks(push *gogithub.PushEvent) bool {
	ref := push.GetRef()
	if h.ref == "" {
		return ref == "refs/heads/"+push.GetRepo().GetDefaultBranch()
	}
	name := strings.TrimPrefix(strings.TrimPrefix(ref, "refs/heads/"), "refs/tags/")
	return name == h.ref
}
