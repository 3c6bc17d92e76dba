package app

import (
	"context"
	"errors"
	"log"

	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/config"
	"github.com/bassista/fitsync/internal/control"
	"github.com/bassista/fitsync/internal/ledger"
	"github.com/bassista/fitsync/internal/queue"
	"github.com/bassista/fitsync/internal/store"
)

// App is the application container (immutable dependencies + lifecycle context).
// Every component is constructed explicitly and passed by reference; there is
// no hidden global state.
type App struct {
	Config     *config.Config
	Store      store.Store
	Cache      *cachemgr.Manager
	Queue      *queue.Queue
	Ledger     *ledger.Ledger
	Online     *queue.OnlineFlag
	Dispatcher *control.Dispatcher
	Rules      *cachemgr.RulesFile

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

func New(cfg *config.Config, s store.Store, cache *cachemgr.Manager, q *queue.Queue, l *ledger.Ledger, online *queue.OnlineFlag, rules *cachemgr.RulesFile) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if s == nil {
		return nil, errors.New("store is nil")
	}
	if cache == nil {
		return nil, errors.New("cache manager is nil")
	}
	if q == nil {
		return nil, errors.New("queue is nil")
	}
	if l == nil {
		return nil, errors.New("ledger is nil")
	}
	if online == nil {
		return nil, errors.New("online flag is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:     cfg,
		Store:      s,
		Cache:      cache,
		Queue:      q,
		Ledger:     l,
		Online:     online,
		Dispatcher: control.NewDispatcher(cache, q),
		Rules:      rules,
		BaseCtx:    ctx,
		Cancel:     cancel,
	}, nil
}

// Shutdown cancels background work and closes the store.
func (a *App) Shutdown() {
	if a == nil {
		return
	}
	if a.Cancel != nil {
		a.Cancel()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// StartWorkers launches the background loops: the rules file watcher (when
// a rules file is configured) and the backoff-driven flush loop.
func (a *App) StartWorkers() {
	if a.Rules != nil {
		if err := a.Rules.StartWatcher(a.BaseCtx, a.Cache.Classifier()); err != nil {
			log.Fatalf("cannot start rules file watcher: %v", err)
		}
	}

	queue.StartFlushLoop(a.BaseCtx, a.Queue, a.Config.Sync.FlushBase, a.Config.Sync.FlushCeiling)
}
