package cmd

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpcall/cli/internal/call"
	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/signaling"
)

// ConnectionContext is an open signaling connection and the handler
// decoding it.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	log := slog.Default()

	client := signaling.NewClient(cfg.WebSocketURL, log)
	if err := client.Connect(ctx); err != nil {
		return nil, call.NewError("connect to server", err)
	}

	handler := signaling.NewHandler(client, log)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, call.NewError("load config", err)
	}
	return cfg, nil
}
