package main

import (
	"context"
	"errors"
	"time"

	"synccal/internal/calendar"
	"synccal/internal/config"
	"synccal/internal/ics"
	appLog "synccal/internal/log"
	"synccal/internal/metrics"
	"synccal/internal/store"
	"synccal/internal/syncer"
	"synccal/internal/syncsession"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	store    store.Store
	metrics  *metrics.Collector
	session  *syncsession.Session
	local    *calendar.Calendar
	provider *ics.Provider
	syncer   *syncer.Syncer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	mc := metrics.NewCollector()
	sess, err := syncsession.Open(ctx, st,
		syncsession.WithInterval(cfg.SyncInterval),
		syncsession.WithMetrics(mc),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	local, err := calendar.Open(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	provider := ics.NewProvider(cfg.Provider, cfg.Location(), nil)
	sy := syncer.New(sess, local, provider,
		syncer.WithRetry(syncer.RetryPolicyFrom(cfg.Provider.Retry)),
		syncer.WithHorizon(time.Duration(cfg.Provider.HorizonDays)*24*time.Hour),
		syncer.WithMetrics(mc),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		metrics:  mc,
		session:  sess,
		local:    local,
		provider: provider,
		syncer:   sy,
	}, nil
}

// close flushes the session state and releases the store.
func (a *app) close(ctx context.Context) error {
	err := a.session.Shutdown(ctx)
	if cerr := a.store.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		appLog.Error("shutdown incomplete", err)
	}
	return err
}
