// ABOUTME: Wires config, store, mirror client and ledger writer into a session
// ABOUTME: Read-only commands work without operator credentials

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/coven-hcs10/internal/config"
	"github.com/2389/coven-hcs10/internal/hcs"
	"github.com/2389/coven-hcs10/internal/ledger"
	"github.com/2389/coven-hcs10/internal/messaging"
	"github.com/2389/coven-hcs10/internal/mirror"
	"github.com/2389/coven-hcs10/internal/monitor"
	"github.com/2389/coven-hcs10/internal/session"
	"github.com/2389/coven-hcs10/internal/store"
)

// channel joins the mirror read side with the optional ledger write side.
type channel struct {
	*mirror.Client
	writer *ledger.Writer
}

func (c channel) SubmitMessage(ctx context.Context, topicID string, payload []byte, memo string) (*hcs.SubmitReceipt, error) {
	if c.writer == nil {
		return nil, fmt.Errorf("submitting message: no operator credentials: %w", hcs.ErrNotInitialized)
	}
	return c.writer.SubmitMessage(ctx, topicID, payload, memo)
}

type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	store      *store.SQLiteStore
	writer     *ledger.Writer
	manager    *session.Manager
	session    *session.Session
}

// openApp loads config and storage. agentName, when set, selects a stored
// identity instead of the configured one.
func openApp(ctx context.Context, agentName string) (*app, error) {
	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithSealingSecret(cfg.Database.SealingSecret),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &app{cfg: cfg, configPath: configPath, logger: logger, store: st}

	client, err := mirror.New(mirror.Options{
		BaseURL:        cfg.Network.MirrorURL,
		CDNURL:         cfg.Network.CDNURL,
		Network:        cfg.Network.Name,
		RequestsPerSec: cfg.Network.RequestsPerSecond,
		Burst:          cfg.Network.Burst,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating mirror client: %w", err)
	}

	writer, err := ledger.New(ledger.Options{
		Network:     cfg.Network.Name,
		OperatorID:  cfg.Operator.AccountID,
		OperatorKey: cfg.Operator.PrivateKey,
		Logger:      logger,
	})
	switch {
	case errors.Is(err, hcs.ErrNotInitialized):
		logger.Debug("no operator credentials, ledger writes disabled")
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("creating ledger writer: %w", err)
	default:
		a.writer = writer
	}

	deps := session.Deps{
		Channel: channel{Client: client, writer: a.writer},
		Store:   st,
		Fees:    hcs.DefaultFeeBuilder,
		Messaging: messaging.Options{
			Attempts: cfg.Messaging.ReplyAttempts,
			Interval: cfg.Messaging.ReplyInterval,
		},
		Logger: logger,
	}
	if a.writer != nil {
		deps.Accepter = a.writer
	}
	a.manager = session.NewManager(deps)

	agent, err := a.resolveAgent(ctx, agentName)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session, err = a.manager.SetCurrentAgent(ctx, agent)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("selecting agent: %w", err)
	}
	return a, nil
}

// resolveAgent returns the stored identity named agentName, or the configured
// agent, which is saved so later runs can select it by name.
func (a *app) resolveAgent(ctx context.Context, agentName string) (hcs.RegisteredAgent, error) {
	if agentName != "" && agentName != a.cfg.Agent.Name {
		agent, err := a.store.GetAgent(ctx, agentName)
		if errors.Is(err, store.ErrNoSealingSecret) {
			a.logger.Warn("stored agent key unavailable without sealing secret", "agent", agentName)
			return agent, nil
		}
		if err != nil {
			return agent, fmt.Errorf("loading agent %q: %w", agentName, err)
		}
		return agent, nil
	}

	agent := a.cfg.RegisteredAgent()
	if err := a.store.SaveAgent(ctx, agent); err != nil {
		a.logger.Warn("saving configured agent failed", "agent", agent.Name, "error", err)
	}
	return agent, nil
}

// sync refreshes connection state from the ledger.
func (a *app) sync(ctx context.Context) error {
	res, err := a.session.Sync(ctx)
	if err != nil {
		return fmt.Errorf("syncing connections: %w", err)
	}
	a.logger.Debug("synced",
		"established", res.Established,
		"incoming", res.Incoming,
		"outgoing", res.Outgoing,
		"closed", res.Closed,
	)
	return nil
}

func (a *app) Close() {
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Warn("closing ledger client", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func monitorConfig(mc config.MonitorConfig) monitor.Config {
	hbar, tokens := mc.Fees()
	return monitor.Config{
		Duration:         mc.Duration,
		Interval:         mc.Interval,
		AcceptAll:        mc.AcceptAll,
		TargetAccountID:  mc.TargetAccountID,
		HbarFees:         hbar,
		TokenFees:        tokens,
		ExemptAccountIDs: mc.ExemptAccountIDs,
		DefaultCollector: mc.DefaultCollector,
		Memo:             mc.Memo,
	}
}
