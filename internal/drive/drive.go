package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/mediatype"
)

// Signer signs a manifest template, filling in its ID, pubkey and signature.
// A rejection propagates to the caller uncaught.
type Signer interface {
	Sign(ctx context.Context, ev *nostr.Event) error
}

// Publisher delivers a signed manifest event to the relay set. It fails if
// no relay accepts the event.
type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event) error
}

// BlobDownloader retrieves a blob by its content hash from a single server.
type BlobDownloader interface {
	Download(ctx context.Context, server, sha256 string) ([]byte, error)
}

// Cipher turns a password and a scrypt work factor into a whole-buffer
// symmetric transform. Decrypt fails with ErrDecryptFailed on a wrong
// password or corrupt input.
type Cipher interface {
	Encrypt(plain []byte, password string, logN int) ([]byte, error)
	Decrypt(ciphertext []byte, password string) ([]byte, error)
}

// FileData is a downloaded file's bytes wrapped with its declared name
// and MIME type.
type FileData struct {
	Name string
	Type string
	Data []byte
}

// manifestCodec is the extension point between the plain and encrypted
// variants: it owns manifest (de)serialization while the Drive owns the
// synchronization state machine.
type manifestCodec interface {
	kind() int
	decode(ev *nostr.Event) (Metadata, *Tree, error)
	encode(d *Drive) (*nostr.Event, error)
}

// Drive owns one tree plus the last-seen manifest event and reconciles
// local mutations with remotely-observed manifests using last-writer-wins
// by timestamp. Drives are not safe for concurrent use; all mutation is
// expected from a single goroutine.
type Drive struct {
	signer     Signer
	publisher  Publisher
	downloader BlobDownloader
	logger     Logger
	clock      Clock

	meta     Metadata
	tree     *Tree
	event    *nostr.Event
	modified bool

	onChange []func()
	onUpdate []func(*nostr.Event)

	uploading bool

	codec manifestCodec
}

// New creates an empty plain drive.
func New(signer Signer, publisher Publisher, downloader BlobDownloader, logger Logger, clock Clock) *Drive {
	d := &Drive{
		signer:     signer,
		publisher:  publisher,
		downloader: downloader,
		logger:     logger,
		clock:      clock,
		tree:       NewTree(),
	}
	d.codec = plainCodec{}
	return d
}

// FromEvent creates a drive whose resident state is the given genesis event.
func FromEvent(ev *nostr.Event, signer Signer, publisher Publisher, downloader BlobDownloader, logger Logger, clock Clock) (*Drive, error) {
	d := New(signer, publisher, downloader, logger, clock)
	if _, err := d.Update(ev); err != nil {
		return nil, err
	}
	return d, nil
}

// OnChange registers a callback fired after every state change: local
// mutations, metadata edits and adopted manifest events.
func (d *Drive) OnChange(fn func()) { d.onChange = append(d.onChange, fn) }

// OnUpdate registers a callback fired whenever the resident manifest event
// is replaced, with the newly adopted event.
func (d *Drive) OnUpdate(fn func(*nostr.Event)) { d.onUpdate = append(d.onUpdate, fn) }

func (d *Drive) fireChange() {
	for _, fn := range d.onChange {
		fn()
	}
}

func (d *Drive) fireUpdate(ev *nostr.Event) {
	for _, fn := range d.onUpdate {
		fn(ev)
	}
}

// touch marks the drive dirty and notifies observers. Every local mutation
// goes through here; none of them publish by themselves.
func (d *Drive) touch() {
	d.modified = true
	d.fireChange()
}

// Modified reports whether local mutations have not been saved yet.
func (d *Drive) Modified() bool { return d.modified }

// Event returns the resident manifest event, or nil before the first
// update or save.
func (d *Drive) Event() *nostr.Event { return d.event }

// Kind returns the manifest kind this drive reads and writes.
func (d *Drive) Kind() int { return d.codec.kind() }

// Tree returns the drive's tree. The drive exclusively owns it; it is
// replaced wholesale whenever a newer manifest is adopted.
func (d *Drive) Tree() *Tree { return d.tree }

func (d *Drive) Identifier() string  { return d.meta.Identifier }
func (d *Drive) Name() string        { return d.meta.Name }
func (d *Drive) Description() string { return d.meta.Description }
func (d *Drive) Pubkey() string      { return d.meta.Pubkey }

// Servers returns the drive's storage server URLs in manifest order.
func (d *Drive) Servers() []string {
	servers := make([]string, len(d.meta.Servers))
	copy(servers, d.meta.Servers)
	return servers
}

func (d *Drive) SetIdentifier(id string) {
	if d.meta.Identifier == id {
		return
	}
	d.meta.Identifier = id
	d.touch()
}

func (d *Drive) SetName(name string) {
	if d.meta.Name == name {
		return
	}
	d.meta.Name = name
	d.touch()
}

func (d *Drive) SetDescription(desc string) {
	if d.meta.Description == desc {
		return
	}
	d.meta.Description = desc
	d.touch()
}

// AddServer normalizes the URL to its origin root and appends it to the
// server list if not already present.
func (d *Drive) AddServer(raw string) error {
	server, err := normalizeServerURL(raw)
	if err != nil {
		return err
	}
	for _, s := range d.meta.Servers {
		if s == server {
			return nil
		}
	}
	d.meta.Servers = append(d.meta.Servers, server)
	d.touch()
	return nil
}

// RemoveServer removes a server from the list. Removing an unknown server
// is a no-op.
func (d *Drive) RemoveServer(raw string) {
	server, err := normalizeServerURL(raw)
	if err != nil {
		return
	}
	for i, s := range d.meta.Servers {
		if s == server {
			d.meta.Servers = append(d.meta.Servers[:i], d.meta.Servers[i+1:]...)
			d.touch()
			return
		}
	}
}

// Resolve returns the node at path.
func (d *Drive) Resolve(path string) (Node, error) { return d.tree.Resolve(path) }

// File returns the file at path.
func (d *Drive) File(path string) (*File, error) { return d.tree.File(path) }

// Folder resolves path to a folder, creating intermediate folders when
// create is true. The drive is marked dirty only when a folder was
// actually created.
func (d *Drive) Folder(path string, create bool) (*Folder, error) {
	folder, err := d.tree.Folder(path, false)
	if err == nil || !create || !errors.Is(err, ErrNotFound) {
		return folder, err
	}
	folder, err = d.tree.Folder(path, true)
	if err != nil {
		return nil, err
	}
	d.touch()
	return folder, nil
}

// SetFile creates or overwrites the file at path.
func (d *Drive) SetFile(path, sha256 string, size int64, mimeType string) (*File, error) {
	file, err := d.tree.SetFile(path, sha256, size, mimeType)
	if err != nil {
		return nil, err
	}
	d.touch()
	return file, nil
}

// Remove detaches the node at path.
func (d *Drive) Remove(path string) error {
	if err := d.tree.Remove(path); err != nil {
		return err
	}
	d.touch()
	return nil
}

// Move detaches the node at src and re-attaches it at dest.
func (d *Drive) Move(src, dest string) error {
	if err := d.tree.Move(src, dest); err != nil {
		return err
	}
	d.touch()
	return nil
}

// Update applies the event as the new resident state if it is strictly
// newer than the current one. An older or equal event is silently ignored
// and Update returns false. On success the tree and metadata are re-derived
// from the event and the dirty flag is cleared.
func (d *Drive) Update(ev *nostr.Event) (bool, error) {
	if d.event != nil && ev.CreatedAt <= d.event.CreatedAt {
		return false, nil
	}
	meta, tree, err := d.codec.decode(ev)
	if err != nil {
		return false, err
	}
	d.event = ev
	d.meta = meta
	d.tree = tree
	d.modified = false
	d.fireChange()
	d.fireUpdate(ev)
	return true, nil
}

// CreateEventTemplate serializes the drive into an unsigned manifest event
// stamped strictly after the resident event. Tags from the resident event
// that are not re-derivable from drive state are carried over.
func (d *Drive) CreateEventTemplate() (*nostr.Event, error) {
	return d.codec.encode(d)
}

// templateTimestamp is the wall-clock time, bumped past the resident event
// when both fall in the same second so the signed result wins the Update
// back in.
func (d *Drive) templateTimestamp() nostr.Timestamp {
	ts := nostr.Timestamp(d.clock.Now().Unix())
	if d.event != nil && ts <= d.event.CreatedAt {
		ts = d.event.CreatedAt + 1
	}
	return ts
}

// Save publishes local mutations. It is a no-op returning (nil, nil) when
// the drive is not dirty. Otherwise it builds a template, signs it,
// publishes it, and folds the signed event back in via Update. Signer and
// publisher failures propagate uncaught.
func (d *Drive) Save(ctx context.Context) (*nostr.Event, error) {
	if !d.modified {
		return nil, nil
	}
	tmpl, err := d.CreateEventTemplate()
	if err != nil {
		return nil, err
	}
	if err := d.signer.Sign(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("signing manifest: %w", err)
	}
	if err := d.publisher.Publish(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("publishing manifest: %w", err)
	}
	if _, err := d.Update(tmpl); err != nil {
		return nil, fmt.Errorf("adopting saved manifest: %w", err)
	}
	return tmpl, nil
}

// Reset discards local dirty mutations, reverting tree and metadata to
// what the resident event encodes. With no resident event the drive
// becomes empty.
func (d *Drive) Reset() error {
	if d.event == nil {
		d.meta = Metadata{}
		d.tree = NewTree()
		d.modified = false
		d.fireChange()
		return nil
	}
	meta, tree, err := d.codec.decode(d.event)
	if err != nil {
		return err
	}
	d.meta = meta
	d.tree = tree
	d.modified = false
	d.fireChange()
	return nil
}

// downloadServers merges the configured servers with extras, preserving
// order and adding each server at most once.
func (d *Drive) downloadServers(extra []string) []string {
	servers := d.Servers()
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		seen[s] = true
	}
	for _, raw := range extra {
		s, err := normalizeServerURL(raw)
		if err != nil || seen[s] {
			continue
		}
		seen[s] = true
		servers = append(servers, s)
	}
	return servers
}

// GetFileURL deterministically constructs a retrieval URL for the file at
// path from the first known server, the file's content hash and a
// best-guess extension.
func (d *Drive) GetFileURL(path string, extraServers ...string) (string, error) {
	file, err := d.tree.File(path)
	if err != nil {
		return "", err
	}
	servers := d.downloadServers(extraServers)
	if len(servers) == 0 {
		return "", fmt.Errorf("building url for %q: no servers configured", path)
	}
	return blobURL(servers[0], file), nil
}

func blobURL(server string, file *File) string {
	url := server + "/" + file.SHA256
	ext := file.Extension()
	if ext == "" {
		ext = mediatype.ExtensionForType(file.Type)
	}
	if ext != "" {
		url += "." + ext
	}
	return url
}

// DownloadFile tries each server in order (configured first, then extras)
// and returns the first successful response wrapped with the file's
// declared name and type. Per-server failures are logged at debug level
// and otherwise swallowed; if every server fails the result is ErrNotFound.
func (d *Drive) DownloadFile(ctx context.Context, path string, extraServers ...string) (*FileData, error) {
	file, err := d.tree.File(path)
	if err != nil {
		return nil, err
	}
	data, err := d.fetchBlob(ctx, file.SHA256, extraServers)
	if err != nil {
		return nil, err
	}
	return &FileData{Name: file.Name, Type: file.Type, Data: data}, nil
}

// fetchBlob runs the server-fallback loop for a single content hash.
func (d *Drive) fetchBlob(ctx context.Context, sha256 string, extraServers []string) ([]byte, error) {
	for _, server := range d.downloadServers(extraServers) {
		data, err := d.downloader.Download(ctx, server, sha256)
		if err != nil {
			d.logger.Debug("blob download failed", "server", server, "sha256", sha256, "error", err)
			continue
		}
		return data, nil
	}
	return nil, ErrNotFound
}

// BeginUpload reserves the drive's single upload slot. A second concurrent
// batch against the same drive is rejected rather than left undefined.
func (d *Drive) BeginUpload() error {
	if d.uploading {
		return ErrUploadInProgress
	}
	d.uploading = true
	return nil
}

// EndUpload releases the upload slot.
func (d *Drive) EndUpload() { d.uploading = false }

// plainCodec is the manifest codec for unencrypted drives: empty content,
// everything in clear tags.
type plainCodec struct{}

func (plainCodec) kind() int { return KindDrive }

func (plainCodec) decode(ev *nostr.Event) (Metadata, *Tree, error) {
	meta, err := ReadEventMetadata(ev)
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, TreeFromTags(ev.Tags), nil
}

func (plainCodec) encode(d *Drive) (*nostr.Event, error) {
	if d.meta.Identifier == "" {
		return nil, ErrMissingIdentifier
	}
	tags := carryOverTags(d.event)
	tags = append(tags, metadataTags(d.meta)...)
	tags = append(tags, TreeToTags(d.tree)...)
	return &nostr.Event{
		Kind:      KindDrive,
		CreatedAt: d.templateTimestamp(),
		Tags:      tags,
		Content:   "",
	}, nil
}
