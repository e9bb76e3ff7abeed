package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jgivc/netfshare/internal/adapter/mdadapter"
	"github.com/jgivc/netfshare/internal/adapter/tpladapter"
	"github.com/jgivc/netfshare/internal/config"
	"github.com/jgivc/netfshare/internal/events"
	httphandler "github.com/jgivc/netfshare/internal/handler/http"
	"github.com/jgivc/netfshare/internal/metrics"
	"github.com/jgivc/netfshare/internal/probe"
	"github.com/jgivc/netfshare/internal/repository"
	"github.com/jgivc/netfshare/internal/service/archive"
	"github.com/jgivc/netfshare/internal/service/counter"
	"github.com/jgivc/netfshare/internal/service/page"
	"github.com/jgivc/netfshare/internal/service/registry"
	"github.com/jgivc/netfshare/internal/service/session"
	"github.com/jgivc/netfshare/internal/service/transfer"
	"github.com/jgivc/netfshare/internal/storage/tree"
	"github.com/spf13/afero"
)

const (
	reconcileTimeout = 30 * time.Second
	dumpTimeout      = 10 * time.Second
	storeTimeout     = 5 * time.Second

	auditFileName = "audit.yml"
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	store   repository.Store
	hub     interface{ Close() }
	logOut  io.Closer

	registry interface {
		Reconcile(ctx context.Context) (int, error)
	}
	sessions interface {
		DumpAudit(ctx context.Context, fileName string) error
	}

	log *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

// Start builds every component, reconciles the registry and starts serving.
// It returns once the listener is running in the background. On error every
// resource opened so far is released.
func (a *App) Start() (err error) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, out, err := newLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	a.log, a.logOut = log, out

	defer func() {
		if err != nil {
			a.release()
		}
	}()

	fs := afero.NewOsFs()
	for _, dir := range []string{cfg.StateDir, cfg.CacheDir} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	store, err := newStore(ctx, &cfg.Store, log)
	if err != nil {
		return err
	}
	a.store = store

	prober, err := probe.New(probe.Config{
		Method:         cfg.Probe.Method,
		TCPPorts:       cfg.Probe.TCPPorts,
		ICMPPrivileged: cfg.Probe.ICMPPrivileged,
	}, log)
	if err != nil {
		return fmt.Errorf("cannot create prober: %w", err)
	}

	hub := events.NewHub(log)
	a.hub = hub

	treeStore := tree.NewTreeStorage(fs, cfg.ShareRoot, cfg.ExcludedNames, log)
	regSrv := registry.NewRegistryService(registry.Config{
		ShareRoot:    cfg.ShareRoot,
		DescFileName: cfg.DescFileName,
	}, fs, treeStore, store, mdadapter.NewDescriptionRenderer(log), hub, log)
	a.registry = regSrv

	archSrv := archive.NewArchiveService(archive.Config{
		ShareRoot: cfg.ShareRoot,
		CacheDir:  cfg.CacheDir,
	}, fs, metrics.NewArchiveMetrics(), log)

	sessSrv := session.NewSessionService(session.Config{
		ProbeTimeout: cfg.Probe.Timeout,
		Workers:      cfg.Probe.Workers,
	}, fs, store, prober.Probe, hub, metrics.NewSessionMetrics(), log)
	a.sessions = sessSrv

	trSrv := transfer.NewTransferService(transfer.Config{
		ShareRoot:         cfg.ShareRoot,
		ArchiveTTL:        cfg.ArchiveTTL(),
		MaxFilesPerUpload: cfg.MaxFilesPerUpload,
	}, fs, archSrv, regSrv, sessSrv, log)

	tpl, err := tpladapter.NewTplAdapter(cfg.PageTemplate)
	if err != nil {
		return fmt.Errorf("cannot create page renderer: %w", err)
	}
	pageSrv := page.NewPageService(regSrv, sessSrv, tpl, log)
	cntSrv := counter.NewCounterService(store, log)

	a.Reconcile()

	mux := http.NewServeMux()
	requireIdentity := httphandler.RequireIdentity(sessSrv)

	mux.Handle("GET /{$}", httphandler.NewPageHandler(pageSrv, log))
	mux.Handle("POST /{$}", httphandler.RequireAdmin(httphandler.NewManageHandler(regSrv, log)))

	mux.Handle("GET /api/dirs", httphandler.NewListHandler(regSrv, log))
	mux.Handle("GET /api/dirs/{path}/description", httphandler.NewDescriptionHandler(regSrv, log))
	mux.Handle("POST /api/identify", httphandler.NewIdentifyHandler(sessSrv, log))

	mux.Handle("GET /download/{path}", requireIdentity(httphandler.NewDownloadHandler(trSrv, log)))
	mux.Handle("POST /upload/{path}",
		requireIdentity(httphandler.NewUploadHandler(cfg.Server.MaxUploadMemory, trSrv, log)))

	mux.Handle("POST /admin/dirs/{id}/mode", httphandler.RequireAdmin(httphandler.NewSetModeHandler(regSrv, log)))
	mux.Handle("POST /admin/session/reset", httphandler.RequireAdmin(httphandler.NewResetSessionHandler(sessSrv, log)))
	mux.Handle("POST /admin/sweep", httphandler.RequireAdmin(httphandler.NewSweepHandler(sessSrv, log)))
	mux.Handle("POST /admin/reconcile", httphandler.RequireAdmin(httphandler.NewReconcileHandler(regSrv, log)))
	mux.Handle("GET /admin/clients", httphandler.RequireAdmin(httphandler.NewClientsHandler(sessSrv, log)))
	mux.Handle("GET /admin/audit", httphandler.RequireAdmin(httphandler.NewAuditHandler(sessSrv, log)))
	mux.Handle("GET /admin/counters", httphandler.RequireAdmin(httphandler.NewCounterHandler(cntSrv, log)))
	mux.Handle("GET /admin/counters/{path}", httphandler.RequireAdmin(httphandler.NewCounterHandler(cntSrv, log)))
	mux.Handle("GET /admin/events", httphandler.RequireAdmin(http.HandlerFunc(hub.HandleConnection)))
	mux.Handle("GET /metrics", httphandler.RequireAdmin(metrics.Handler()))

	var handler http.Handler = mux
	handler = httphandler.WithIdentity(httphandler.AddressInHost, sessSrv, log)(handler)
	handler = httphandler.WithRequestLog(log)(handler)

	a.srv = &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", cfg.Server.Listen), slog.String("share_root", cfg.ShareRoot))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not serve", slog.String("listen_addr", cfg.Server.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()

	return nil
}

// Reconcile registers new top-level directories of the shared root.
func (a *App) Reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	n, err := a.registry.Reconcile(ctx)
	if err != nil {
		a.log.Error("Cannot reconcile registry", slog.Any("error", err))

		return
	}

	a.log.Info("Registry reconciled", slog.Int("inserted", n))
}

// Dump writes the audit of the current session to the state dir.
func (a *App) Dump() {
	ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
	defer cancel()

	fileName := filepath.Join(a.cfg.StateDir, auditFileName)
	if err := a.sessions.DumpAudit(ctx, fileName); err != nil {
		a.log.Error("Cannot dump audit", slog.Any("error", err))

		return
	}

	a.log.Info("Audit dumped", slog.String("file", fileName))
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	a.release()
}

// release closes the hub, the store and the log file. Each is closed once.
func (a *App) release() {
	if a.hub != nil {
		a.hub.Close()
		a.hub = nil
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Cannot close store", slog.Any("error", err))
		}
		a.store = nil
	}

	if a.logOut != nil {
		_ = a.logOut.Close()
		a.logOut = nil
	}
}
