package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"strongbox/internal/blob"
	"strongbox/internal/catalog"
	"strongbox/internal/config"
	"strongbox/internal/crypto"
	"strongbox/internal/engine"
	"strongbox/internal/gc"
)

// App is the application layer between the CLI and the engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept local filesystem paths, and manages resource lifecycles on Close.
type App struct {
	cfg     *config.Config
	catalog engine.Catalog
	store   engine.BlobStore
	keyring *crypto.FileKeyring
	engine  *engine.Engine
	logger  engine.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Upload", "Sweep").
// The keyring starts locked; commands that touch file content must call
// UnlockKeyring first. The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	cat, err := catalog.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	store, err := blob.NewStoreFromConfig(ctx, cfg.Blob)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	if err := store.Validate(ctx); err != nil {
		cat.Close()
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	sealer, err := crypto.NewAESSealer()
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	keyring := crypto.NewFileKeyring(cfg.Keyring.Path)

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	logger := &slogAdapter{l: slogger}
	eng := engine.NewEngine(cat, store, sealer, keyring, logger, engine.RealClock{}, engine.UUIDGenerator{}, engine.RandomTokenSource{})

	return &App{
		cfg:     cfg,
		catalog: cat,
		store:   store,
		keyring: keyring,
		engine:  eng,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Engine returns the wired engine for direct operation calls.
func (a *App) Engine() *engine.Engine { return a.engine }

// KeyringConfigured reports whether a keyring file exists at the configured path.
func (a *App) KeyringConfigured() bool { return a.keyring.IsConfigured() }

// SetupKeyring creates a new keyring protected by the given passphrase.
// Fails if a keyring already exists.
func (a *App) SetupKeyring(passphrase string) error {
	return a.keyring.Setup(passphrase)
}

// UnlockKeyring decrypts the keyring with the given passphrase.
func (a *App) UnlockKeyring(passphrase string) error {
	return a.keyring.Unlock(passphrase)
}

// UploadFile reads a local file and stores it as a new version under the
// given folder. name defaults to the local file's base name. The MIME type
// is inferred from the file extension.
func (a *App) UploadFile(ctx context.Context, actor engine.Actor, folderID, localPath, name string) (*engine.File, *engine.FileVersion, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	if name == "" {
		name = filepath.Base(localPath)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(localPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return a.engine.Upload(ctx, actor, folderID, name, mimeType, f)
}

// DownloadFile streams a file's content to w. version 0 means the current
// version.
func (a *App) DownloadFile(ctx context.Context, actor engine.Actor, fileID string, version int64, w io.Writer) (*engine.File, error) {
	if version == 0 {
		return a.engine.Download(ctx, actor, fileID, w)
	}
	return a.engine.DownloadVersion(ctx, actor, fileID, version, w)
}

// Sweep removes blobs no longer referenced by any file version.
// Honors the gc.dry_run config setting.
func (a *App) Sweep(ctx context.Context) (*gc.Report, error) {
	collector := gc.NewCollector(a.catalog, a.store, a.logger, a.cfg.GC.DryRun)
	return collector.Run(ctx)
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error

	if err := a.catalog.Close(); err != nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
