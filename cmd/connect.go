package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-research/scopetree/internal/dapwire"
	"github.com/agentic-research/scopetree/internal/debugsession"
	"github.com/agentic-research/scopetree/internal/launchcfg"
	"github.com/agentic-research/scopetree/internal/transcript"
)

// connection bundles everything an attached command needs to tear down.
type connection struct {
	client     *dapwire.Client
	session    *debugsession.Session
	transcript *transcript.Store
	cancel     context.CancelFunc
}

func (c *connection) close() {
	c.cancel()
	_ = c.client.Close()
	if c.transcript != nil {
		_ = c.transcript.Close()
	}
}

// resolveConfig merges launch.json (if given), environment, and the
// optional positional address.
func resolveConfig(launchConfigPath, configName, addrArg string) (launchcfg.Config, error) {
	var cfg launchcfg.Config
	var err error
	if launchConfigPath != "" {
		cfg, err = launchcfg.Load(launchConfigPath, configName)
		if err != nil {
			return cfg, err
		}
	} else {
		cfg = launchcfg.FromEnv()
	}
	if addrArg != "" {
		cfg.Addr = addrArg
	}
	if transcriptPath != "" {
		cfg.TranscriptPath = transcriptPath
	}
	return cfg, cfg.Validate()
}

// connect dials the adapter, performs the attach handshake, and starts the
// client and session loops.
func connect(ctx context.Context, cfg launchcfg.Config, log *slog.Logger) (*connection, error) {
	client, err := dapwire.Dial(cfg.Addr, cfg.ConnectTimeout, log)
	if err != nil {
		return nil, err
	}

	var store *transcript.Store
	if cfg.TranscriptPath != "" {
		store, err = transcript.Open(cfg.TranscriptPath)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		client.SetRecorder(store)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go client.Run(runCtx)

	session := debugsession.New(client, log)
	go session.Run(runCtx)

	conn := &connection{client: client, session: session, transcript: store, cancel: cancel}

	if err := client.Initialize(ctx); err != nil {
		conn.close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := client.Attach(ctx, map[string]any{}); err != nil {
		conn.close()
		return nil, fmt.Errorf("attach: %w", err)
	}
	if err := client.ConfigurationDone(ctx); err != nil {
		// Not every adapter requires the configuration phase.
		log.Debug("configurationDone rejected", "err", err)
	}
	return conn, nil
}
