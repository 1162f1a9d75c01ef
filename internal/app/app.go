package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dsync-go/internal/compression"
	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
	"dsync-go/internal/encryption"
	"dsync-go/internal/fs"
	"dsync-go/internal/journal"
	"dsync-go/internal/metrics"
	"dsync-go/internal/store"
	"dsync-go/internal/transport"
	"dsync-go/internal/web"
)

// DSyncApp is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and closes the journal and log on Close.
type DSyncApp struct {
	cfg       *config.Config
	engine    *dsync.Engine
	mirror    *dsync.Mirror
	files     *store.IndexFile
	endpoints *transport.EndpointPool
	journal   *journal.SQLiteJournal
	metrics   *metrics.Metrics
	logger    dsync.Logger
	op        *Operation
	logCloser io.Closer
}

// NewDSyncApp creates a fully wired DSyncApp from the given config.
// operation identifies the CLI command being run (e.g. "upload", "watch").
// The caller must call Close when done.
func NewDSyncApp(ctx context.Context, cfg *config.Config, operation string) (*DSyncApp, error) {
	op := NewOperation(operation, "")
	slogger, logCloser, err := newLogger(cfg.LogDir, operation, op.ID, logLevel())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a, err := newApp(ctx, cfg, op, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	a.logCloser = logCloser
	logger.Info("operation started", "operation", operation, "sync_dir", cfg.SyncDir)
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, op *Operation, logger dsync.Logger) (*DSyncApp, error) {
	m := metrics.New()

	t, endpoints, err := transport.NewTransportFromConfig(ctx, cfg.Transport, m, logger)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	comp, err := compression.NewFromConfig(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	files := store.NewIndexFile(cfg.Index.FilesPath)
	mirror := dsync.NewMirror(t, endpoints, store.NewPointerFile(cfg.Index.PointerPath), dsync.RealClock{}, logger)

	engine, err := dsync.NewEngine(dsync.Options{
		SyncDir:      cfg.SyncDir,
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
		Concurrency:  cfg.Transport.Concurrency,
		Ignore:       cfg.Filesystem.Ignore,
	}, dsync.Deps{
		Transport:  t,
		Endpoints:  endpoints,
		Encryptor:  enc,
		Compressor: comp,
		Files:      files,
		Folders:    store.NewFolderFile(cfg.Index.FoldersPath),
		Mirror:     mirror,
		Logger:     logger,
		Clock:      dsync.RealClock{},
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	j, err := journal.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := j.CheckMigrations(); err != nil {
		j.Close()
		return nil, fmt.Errorf("journal schema out of date: %w", err)
	}

	if endpoints.Len() == 0 {
		logger.Warn("no endpoints configured", "file", cfg.Transport.EndpointsFile)
	}

	return &DSyncApp{
		cfg:       cfg,
		engine:    engine,
		mirror:    mirror,
		files:     files,
		endpoints: endpoints,
		journal:   j,
		metrics:   m,
		logger:    logger,
		op:        op,
	}, nil
}

// Engine exposes the wired engine for read-only commands.
func (a *DSyncApp) Engine() *dsync.Engine { return a.engine }

// persistOperation saves the operation to the journal, giving it an id.
// This should only be called for commands that change state.
func (a *DSyncApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	jop, err := a.journal.StartOperation(ctx, a.op.Name, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.JournalID = jop.ID
	return nil
}

// record journals every result of a batch and marks the operation failed
// when any file failed.
func (a *DSyncApp) record(ctx context.Context, report *dsync.BatchReport) {
	for _, r := range report.Results {
		if err := a.journal.RecordResult(ctx, a.op.JournalID, r.Path, r.Err); err != nil {
			a.logger.Warn("journaling result failed", "path", r.Path, "error", err)
		}
	}
	if report.Failed() > 0 {
		a.op.Fail()
	}
}

// fail marks the operation failed and passes err through.
func (a *DSyncApp) fail(err error) error {
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Upload uploads the given files, or scans the whole sync dir when no path
// is given. Every path must lie inside the sync dir.
func (a *DSyncApp) Upload(ctx context.Context, rawPaths []string) (*dsync.BatchReport, error) {
	if err := a.persistOperation(ctx, fmt.Sprint(rawPaths)); err != nil {
		return nil, err
	}

	if len(rawPaths) == 0 {
		report, err := a.engine.Scan(ctx)
		if report != nil {
			a.record(ctx, report)
		}
		return report, a.fail(err)
	}

	report := &dsync.BatchReport{}
	for _, raw := range rawPaths {
		if err := ctx.Err(); err != nil {
			a.record(ctx, report)
			return report, a.fail(err)
		}
		abs, err := filepath.Abs(raw)
		if err != nil {
			report.Results = append(report.Results, dsync.FileResult{Path: raw, Err: fmt.Errorf("resolving path: %w", err)})
			continue
		}
		res, err := a.engine.UploadFile(ctx, abs)
		fr := dsync.FileResult{Path: raw, Err: err}
		if err == nil {
			fr.Path = res.Manifest.FilePath
			fr.Skipped = res.Skipped
		}
		report.Results = append(report.Results, fr)
	}
	a.record(ctx, report)
	return report, nil
}

// Download restores one tracked file to outPath.
func (a *DSyncApp) Download(ctx context.Context, relPath, outPath string) error {
	if err := a.persistOperation(ctx, relPath); err != nil {
		return err
	}
	err := a.engine.DownloadFile(ctx, relPath, outPath)
	if jerr := a.journal.RecordResult(ctx, a.op.JournalID, relPath, err); jerr != nil {
		a.logger.Warn("journaling result failed", "path", relPath, "error", jerr)
	}
	return a.fail(err)
}

// DownloadAll restores every tracked file below outDir.
func (a *DSyncApp) DownloadAll(ctx context.Context, outDir string) (*dsync.BatchReport, error) {
	if err := a.persistOperation(ctx, outDir); err != nil {
		return nil, err
	}
	report, err := a.engine.DownloadAll(ctx, outDir)
	if report != nil {
		a.record(ctx, report)
	}
	return report, a.fail(err)
}

// Delete soft-deletes a tracked path.
func (a *DSyncApp) Delete(ctx context.Context, relPath string) error {
	if err := a.persistOperation(ctx, relPath); err != nil {
		return err
	}
	err := a.engine.MarkDeleted(ctx, relPath)
	if jerr := a.journal.RecordResult(ctx, a.op.JournalID, relPath, err); jerr != nil {
		a.logger.Warn("journaling result failed", "path", relPath, "error", jerr)
	}
	return a.fail(err)
}

// Catalog returns the sanitized file listing.
func (a *DSyncApp) Catalog() *dsync.Catalog {
	return a.engine.Catalog()
}

// Status compares the local copy below rawRoot (default: the sync dir)
// with the index.
func (a *DSyncApp) Status(rawRoot string) ([]*dsync.FileStatus, error) {
	root := ""
	if rawRoot != "" {
		abs, err := filepath.Abs(rawRoot)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		root = abs
	}
	return a.engine.Status(root)
}

// Verify probes every chunk of every available file.
func (a *DSyncApp) Verify(ctx context.Context) ([]dsync.VerifyResult, error) {
	results, err := a.engine.Verify(ctx)
	for _, r := range results {
		if !r.OK() {
			a.op.Fail()
		}
	}
	return results, a.fail(err)
}

// History returns the most recent journaled operations.
func (a *DSyncApp) History(ctx context.Context, limit int) ([]*journal.Operation, error) {
	return a.journal.RecentOperations(ctx, limit)
}

// Results returns the file results journaled for an operation.
func (a *DSyncApp) Results(ctx context.Context, operationID int64) ([]*journal.Result, error) {
	return a.journal.Results(ctx, operationID)
}

// PullIndex restores the local files index from its remote copy. An
// existing local index is only replaced when force is set. The running
// engine keeps the index it loaded at startup.
func (a *DSyncApp) PullIndex(ctx context.Context, force bool) error {
	if a.files.Exists() && !force {
		return a.fail(fmt.Errorf("files index already exists at %s (use --force to overwrite)", a.files.Path()))
	}
	if err := a.persistOperation(ctx, a.files.Path()); err != nil {
		return err
	}
	data, err := a.mirror.Pull(ctx)
	if err != nil {
		return a.fail(fmt.Errorf("pulling files index: %w", err))
	}
	if err := a.files.WriteRaw(data); err != nil {
		return a.fail(err)
	}
	a.logger.Info("files index restored", "path", a.files.Path(), "bytes", len(data))
	return nil
}

// Watch scans the sync dir, then rescans whenever the interval passes or a
// debounced change arrives, until ctx is cancelled. When watch.metrics_addr
// is set, /metrics is served for the lifetime of the loop.
func (a *DSyncApp) Watch(ctx context.Context) error {
	if err := a.persistOperation(ctx, a.cfg.SyncDir); err != nil {
		return err
	}
	if err := os.MkdirAll(a.engine.SyncDir(), 0755); err != nil {
		return a.fail(fmt.Errorf("creating sync dir: %w", err))
	}

	if addr := a.cfg.Watch.MetricsAddr; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	w, err := fs.NewWatcher(a.engine.SyncDir(), a.cfg.Watch.Debounce(), a.logger)
	if err != nil {
		return a.fail(err)
	}
	defer w.Close()

	changes := make(chan struct{}, 1)
	go func() {
		if err := w.Run(ctx, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}); err != nil {
			a.logger.Warn("watcher stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(a.cfg.Watch.Interval())
	defer ticker.Stop()
	for {
		report, err := a.engine.Scan(ctx)
		if report != nil {
			a.record(ctx, report)
			a.logger.Info("scan finished", "transferred", report.Transferred(), "failed", report.Failed())
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-changes:
			a.logger.Debug("change detected, rescanning")
		}
	}
}

func (a *DSyncApp) serveMetrics(addr string) func() {
	srv := &http.Server{Addr: addr, Handler: a.metrics.Handler()}
	go func() {
		a.logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// Serve runs the dashboard API on web.addr until ctx is cancelled.
func (a *DSyncApp) Serve(ctx context.Context) error {
	srv := web.NewServer(a.engine, a.metrics.Handler(), a.logger)
	return a.fail(srv.ListenAndServe(ctx, a.cfg.Web.Addr))
}

// Close finalizes the operation and closes all resources.
func (a *DSyncApp) Close() error {
	var errs []error
	if a.op.Persisted() {
		if err := a.journal.FinishOperation(context.Background(), a.op.JournalID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
	}
	if err := a.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing journal: %w", err))
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log: %w", err))
		}
	}
	return errors.Join(errs...)
}
