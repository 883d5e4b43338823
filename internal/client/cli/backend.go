package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	berrors "go.etcd.io/bbolt/errors"

	"github.com/iudanet/chartsync/internal/client/api"
	"github.com/iudanet/chartsync/internal/client/localapi"
	"github.com/iudanet/chartsync/internal/client/network"
	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/client/storage/boltdb"
	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/internal/models"
)

const daemonPingTimeout = 500 * time.Millisecond

// syncAPI is what one-shot commands need. A running daemon serves it over
// the local API; otherwise the store is opened in-process.
type syncAPI interface {
	GetStatus(ctx context.Context) (models.SyncStatus, error)
	Queue(ctx context.Context) ([]*models.QueueItem, error)
	Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)
	ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)
	TriggerSyncNow(ctx context.Context) (chsync.Result, error)
	RetryItem(ctx context.Context, id string) error
	RetryAllFailed(ctx context.Context) (int, error)
	ClearSynced(ctx context.Context) (int, error)
	ClearFailed(ctx context.Context) (int, error)
	ClearQueue(ctx context.Context) error
	Conflicts(ctx context.Context) ([]*models.Conflict, error)
	ResolveConflict(ctx context.Context, id string, resolution models.Resolution) error
	Records(ctx context.Context, table models.Table) ([]json.RawMessage, error)
	Record(ctx context.Context, table models.Table, id string) (json.RawMessage, error)
}

var (
	_ syncAPI = (*localapi.Client)(nil)
	_ syncAPI = (*runtime)(nil)
)

// runtime is the in-process engine with its collaborators
type runtime struct {
	*chsync.Engine
	store   *boltdb.Storage
	monitor *network.Monitor
	prober  *network.Prober
	remote  *api.Client
	// probeBeforeSync is set for one-shot commands that have no background prober
	probeBeforeSync bool
}

// TriggerSyncNow probes the backend first when nothing else keeps the
// connectivity signal fresh
func (r *runtime) TriggerSyncNow(ctx context.Context) (chsync.Result, error) {
	if r.probeBeforeSync {
		r.prober.Check(ctx)
	}
	return r.Engine.TriggerSyncNow(ctx)
}

func (r *runtime) Close() error {
	r.monitor.Stop()
	return r.store.Close()
}

// withAPI runs fn against the daemon when one answers, else in-process
func (c *Cli) withAPI(ctx context.Context, fn func(syncAPI) error) error {
	if c.cfg.LocalAPI.Enabled && !c.flags.direct {
		client := localapi.NewClient(c.cfg.LocalAPI.Bind)
		if client.Ping(ctx, daemonPingTimeout) {
			c.log().Debug("Using running daemon", "bind", c.cfg.LocalAPI.Bind)
			return fn(client)
		}
	}

	rt, err := c.openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			c.log().Error("Failed to close database", "error", err)
		}
	}()
	return fn(rt)
}

// openRuntime opens the local store and wires the engine. The daemon gets
// the configured debounce; one-shot commands commit probe results at once.
func (c *Cli) openRuntime(ctx context.Context, daemon bool) (*runtime, error) {
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}

	logger := c.log()
	cfg := c.cfg

	debounce := time.Duration(0)
	if daemon {
		debounce = cfg.Sync.Debounce()
	}
	remote := api.NewClient(cfg.Client.ServerURL, cfg.Client.AccessToken).WithTimeout(cfg.Client.RequestTimeout())
	monitor := network.NewMonitor(debounce, logger)
	prober := network.NewProber(remote, monitor, cfg.Sync.ProbeInterval(), cfg.Sync.ProbeTimeout(), logger)
	engine := chsync.NewEngine(store, remote, monitor, chsync.Config{
		Backoff:   chsync.Backoff{Base: cfg.Sync.BackoffBase(), Max: cfg.Sync.BackoffMax()},
		Interval:  cfg.Sync.Interval(),
		ItemDelay: cfg.Sync.ItemDelay(),
	}, logger)

	return &runtime{
		Engine:          engine,
		store:           store,
		monitor:         monitor,
		prober:          prober,
		remote:          remote,
		probeBeforeSync: !daemon,
	}, nil
}

// openStore opens the queue database, asking for the passphrase when the
// store is encrypted and none was configured
func (c *Cli) openStore(ctx context.Context) (*boltdb.Storage, error) {
	path := c.cfg.Client.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	passphrase, err := c.passphrase()
	if err != nil {
		return nil, err
	}

	open := func(passphrase string) (*boltdb.Storage, error) {
		return boltdb.New(ctx, path,
			boltdb.WithLogger(c.log()),
			boltdb.WithPassphrase(passphrase),
		)
	}

	store, err := open(passphrase)
	if errors.Is(err, storage.ErrPassphraseRequired) {
		passphrase, err = c.io.ReadPassword("Passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		store, err = open(passphrase)
	}
	switch {
	case errors.Is(err, berrors.ErrTimeout):
		return nil, fmt.Errorf("database %s is locked; stop the daemon or enable its local API: %w", path, err)
	case err != nil:
		return nil, err
	}
	return store, nil
}
