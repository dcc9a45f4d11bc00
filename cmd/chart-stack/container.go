package main

import (
	"context"
	"log/slog"

	githubin "github.com/nathantilsley/chart-stack/internal/stack/adapters/github_in"
	httpin "github.com/nathantilsley/chart-stack/internal/stack/adapters/http_in"
	"github.com/nathantilsley/chart-stack/internal/platform/config"
	"github.com/nathantilsley/chart-stack/internal/stack/container"
)

// Container holds the server's dependencies.
type Container struct {
	*container.Container
	Handler *httpin.Handler
	// Webhook is nil unless WEBHOOK_SECRET is set for a git source.
	Webhook *githubin.WebhookHandler
}

// NewContainer builds the stack services and the REST handler on top.
func NewContainer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Container, error) {
	c, err := container.New(ctx, cfg, log, container.Options{})
	if err != nil {
		return nil, err
	}

	if cfg.APIToken == "" {
		log.Warn("API_TOKEN not set, the REST API is unauthenticated")
	}
	if cfg.AutoApply {
		log.Info("auto-apply enabled", "repo", cfg.GitRepo)
	}

	handler := httpin.NewHandler(httpin.UseCases{
		Stack:      c.Stack,
		Repos:      c.Repos,
		Charts:     c.Charts,
		Namespaces: c.Namespaces,
	}, cfg.APIToken, log)

	out := &Container{Container: c, Handler: handler}
	if cfg.WebhookSecret != "" && c.Repo != nil {
		out.Webhook = githubin.NewWebhookHandler(c.Repo, cfg.GitRef, cfg.WebhookSecret, log)
		log.Info("push webhook enabled", "path", "/webhook")
	}
	return out, nil
}
