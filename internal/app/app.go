// Package app is the application layer between the CLI and the drive
// packages. It constructs all dependencies from config and manages the
// event cache lifecycle on Close.
package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/blossom"
	"github.com/hzrd149/blossom-drive-client/internal/config"
	"github.com/hzrd149/blossom-drive-client/internal/database"
	"github.com/hzrd149/blossom-drive-client/internal/drive"
	"github.com/hzrd149/blossom-drive-client/internal/encryption"
	"github.com/hzrd149/blossom-drive-client/internal/relay"
	"github.com/hzrd149/blossom-drive-client/internal/upload"
	"github.com/hzrd149/blossom-drive-client/internal/vault"
)

// App wires the signer, relay pool, blob client, cipher, and event cache
// into high-level drive operations. The caller must call Close when done.
type App struct {
	cfg     *config.Config
	store   *database.Store
	signer  *relay.KeySigner
	pool    *relay.Pool
	client  *blossom.Client
	cipher  drive.Cipher
	logger  drive.Logger
	clock   drive.Clock
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "put", "sync").
func NewApp(cfg *config.Config, operation string) (*App, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("no private key configured")
	}
	signer, err := relay.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating event cache: %w", err)
	}

	cipher, err := encryption.NewCipherFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	opID := operation + "-" + time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	return &App{
		cfg:     cfg,
		store:   store,
		signer:  signer,
		pool:    relay.NewPool(cfg.Relays, logger),
		client:  blossom.NewClient(nil),
		cipher:  cipher,
		logger:  logger,
		clock:   drive.RealClock{},
		logFile: logFile,
	}, nil
}

// Close releases the event cache and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Signer returns the key signer backing this app.
func (a *App) Signer() *relay.KeySigner { return a.signer }

// Store returns the local manifest event cache.
func (a *App) Store() *database.Store { return a.store }

// Client returns the blossom blob client.
func (a *App) Client() *blossom.Client { return a.client }

// cacheUpdates persists every adopted manifest event so the drive can be
// reopened offline later.
func (a *App) cacheUpdates(d *drive.Drive) {
	d.OnUpdate(func(ev *nostr.Event) {
		if err := a.store.SaveEvent(ev); err != nil {
			a.logger.Warn("failed to cache manifest event", "id", ev.ID, "error", err)
		}
	})
}

// CreateDrive builds a new public drive with the configured default
// servers. Nothing is published until the first Save.
func (a *App) CreateDrive(identifier, name, description string, servers []string) (*drive.Drive, error) {
	d := drive.New(a.signer, a.pool, a.client, a.logger, a.clock)
	a.cacheUpdates(d)

	d.SetIdentifier(identifier)
	d.SetName(name)
	d.SetDescription(description)
	if len(servers) == 0 {
		servers = a.cfg.Servers
	}
	for _, s := range servers {
		if err := d.AddServer(s); err != nil {
			return nil, fmt.Errorf("adding server %q: %w", s, err)
		}
	}
	return d, nil
}

// CreateEncryptedDrive builds a new encrypted drive protected by password.
func (a *App) CreateEncryptedDrive(identifier, name, description string, servers []string, password string) (*drive.EncryptedDrive, error) {
	ed := drive.NewEncrypted(a.signer, a.pool, a.client, a.cipher, a.logger, a.clock)
	a.cacheUpdates(ed.Drive)

	if err := ed.SetPassword(password, drive.DefaultScryptLogN); err != nil {
		return nil, err
	}
	ed.SetIdentifier(identifier)
	ed.SetName(name)
	ed.SetDescription(description)
	if len(servers) == 0 {
		servers = a.cfg.Servers
	}
	for _, s := range servers {
		if err := ed.AddServer(s); err != nil {
			return nil, fmt.Errorf("adding server %q: %w", s, err)
		}
	}
	return ed, nil
}

// OpenDrive restores a public drive from its cached manifest event.
func (a *App) OpenDrive(identifier string) (*drive.Drive, error) {
	ev, err := a.store.LatestEvent(drive.KindDrive, a.signer.PublicKey(), identifier)
	if err != nil {
		return nil, fmt.Errorf("reading event cache: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("drive %q: %w", identifier, drive.ErrNoManifest)
	}
	d, err := drive.FromEvent(ev, a.signer, a.pool, a.client, a.logger, a.clock)
	if err != nil {
		return nil, err
	}
	a.cacheUpdates(d)
	return d, nil
}

// OpenEncryptedDrive restores an encrypted drive from its cached manifest
// event. The drive starts locked.
func (a *App) OpenEncryptedDrive(identifier string) (*drive.EncryptedDrive, error) {
	ev, err := a.store.LatestEvent(drive.KindEncryptedDrive, a.signer.PublicKey(), identifier)
	if err != nil {
		return nil, fmt.Errorf("reading event cache: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("drive %q: %w", identifier, drive.ErrNoManifest)
	}
	ed, err := drive.EncryptedFromEvent(ev, a.signer, a.pool, a.client, a.cipher, a.logger, a.clock)
	if err != nil {
		return nil, err
	}
	a.cacheUpdates(ed.Drive)
	return ed, nil
}

// syncable is the part of a drive SyncDrive needs. Both *drive.Drive and
// *drive.EncryptedDrive satisfy it.
type syncable interface {
	Kind() int
	Identifier() string
	Update(ev *nostr.Event) (bool, error)
}

// SyncDrive fetches the newest manifest event from the configured relays
// and folds it into the drive. It reports whether the drive changed.
func (a *App) SyncDrive(ctx context.Context, d syncable) (bool, error) {
	ev, err := a.pool.FetchLatest(ctx, d.Kind(), a.signer.PublicKey(), d.Identifier())
	if err != nil {
		return false, fmt.Errorf("fetching manifest: %w", err)
	}
	if ev == nil {
		return false, nil
	}
	if err := a.store.SaveEvent(ev); err != nil {
		a.logger.Warn("failed to cache manifest event", "id", ev.ID, "error", err)
	}
	return d.Update(ev)
}

// SyncIdentifier syncs the identified drive without requiring a cached
// manifest: it seeds a drive from the cache when one exists, otherwise
// starts from an empty one, then fetches from the relays.
func (a *App) SyncIdentifier(ctx context.Context, identifier string, encrypted bool) (bool, error) {
	kind := drive.KindDrive
	if encrypted {
		kind = drive.KindEncryptedDrive
	}
	ev, err := a.store.LatestEvent(kind, a.signer.PublicKey(), identifier)
	if err != nil {
		return false, fmt.Errorf("reading event cache: %w", err)
	}

	var d syncable
	if encrypted {
		ed := drive.NewEncrypted(a.signer, a.pool, a.client, a.cipher, a.logger, a.clock)
		a.cacheUpdates(ed.Drive)
		ed.SetIdentifier(identifier)
		d = ed
	} else {
		pd := drive.New(a.signer, a.pool, a.client, a.logger, a.clock)
		a.cacheUpdates(pd)
		pd.SetIdentifier(identifier)
		d = pd
	}
	if ev != nil {
		if _, err := d.Update(ev); err != nil {
			return false, fmt.Errorf("restoring cached manifest: %w", err)
		}
	}
	return a.SyncDrive(ctx, d)
}

// NewBatch creates an upload batch targeting the drive's servers.
func (a *App) NewBatch(d upload.Drive) *upload.Batch {
	return upload.NewBatch(d, a.client, a.signer, a.logger, drive.UUIDGenerator{})
}

// MirrorDrive copies every blob the drive references into the named vault,
// skipping blobs the vault already has. It returns the number of blobs copied.
func (a *App) MirrorDrive(ctx context.Context, d *drive.Drive, vaultName string) (int, error) {
	cfg, ok := a.findVaultConfig(vaultName)
	if !ok {
		return 0, fmt.Errorf("vault %q not configured", vaultName)
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return 0, fmt.Errorf("validating vault %q: %w", vaultName, err)
	}

	copied := 0
	for path, node := range d.Tree().Walk() {
		f, ok := node.(*drive.File)
		if !ok {
			continue
		}
		has, err := v.HasBlob(ctx, f.SHA256)
		if err != nil {
			return copied, fmt.Errorf("checking %s: %w", path, err)
		}
		if has {
			continue
		}
		data, err := d.DownloadFile(ctx, path)
		if err != nil {
			return copied, fmt.Errorf("downloading %s: %w", path, err)
		}
		if err := v.PutBlob(ctx, f.SHA256, bytes.NewReader(data.Data), int64(len(data.Data))); err != nil {
			return copied, fmt.Errorf("storing %s: %w", path, err)
		}
		a.logger.Info("mirrored blob", "path", path, "sha256", f.SHA256, "vault", vaultName)
		copied++
	}
	return copied, nil
}

func (a *App) findVaultConfig(name string) (config.VaultConfig, bool) {
	for _, vc := range a.cfg.Vaults {
		if vc.Name == name {
			return vc, true
		}
	}
	return config.VaultConfig{}, false
}
