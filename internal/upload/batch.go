// Package upload implements the multi-server upload orchestrator: it fans
// a set of local files out to every storage server a drive lists, records
// per-file per-server outcomes, and mutates the drive's tree as successes
// land.
package upload

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/blossom"
	"github.com/hzrd149/blossom-drive-client/internal/drive"
	"github.com/hzrd149/blossom-drive-client/internal/mediatype"
)

// File is a local file queued for upload.
type File struct {
	Name string
	Type string
	Data []byte
}

// Result is the outcome of one file against one server: a descriptor on
// success or an error on failure, never both.
type Result struct {
	Descriptor *blossom.Descriptor
	Err        error
}

// FileStatus tracks a single file through the batch. Complete means every
// server has been attempted, not that every server succeeded.
type FileStatus struct {
	Complete bool
	Results  map[string]Result // keyed by server URL
}

// Drive is the slice of drive behavior the orchestrator needs. Both
// *drive.Drive and *drive.EncryptedDrive satisfy it.
type Drive interface {
	Servers() []string
	SetFile(path, sha256 string, size int64, mimeType string) (*drive.File, error)
	Save(ctx context.Context) (*nostr.Event, error)
	BeginUpload() error
	EndUpload()
}

// blobEncrypter is satisfied by encrypted drives; when the target drive
// implements it, bytes are encrypted before any network call.
type blobEncrypter interface {
	EncryptBlob(data []byte) ([]byte, error)
}

type entry struct {
	id   string
	file File
	path string
}

// Batch accumulates files and uploads each one to every server of the
// target drive. A batch has two phases, accumulation then execution, and
// is not restartable.
type Batch struct {
	drive  Drive
	client *blossom.Client
	signer blossom.Signer
	logger drive.Logger
	idgen  drive.IDGenerator

	entries []entry
	status  map[string]*FileStatus
	servers []string

	running  bool
	complete bool

	onProgress []func(overall float64)
}

// NewBatch creates an empty batch targeting the given drive.
func NewBatch(d Drive, client *blossom.Client, signer blossom.Signer, logger drive.Logger, idgen drive.IDGenerator) *Batch {
	return &Batch{
		drive:  d,
		client: client,
		signer: signer,
		logger: logger,
		idgen:  idgen,
		status: make(map[string]*FileStatus),
	}
}

// AddFile queues a file for upload at destPath. An empty destPath defaults
// to the bare file name. The declared type goes through the MIME
// correction step before being recorded. Returns the file's batch id.
func (b *Batch) AddFile(f File, destPath string) string {
	if destPath == "" {
		destPath = f.Name
	}
	f.Type = mediatype.Correct(f.Name, f.Type)
	id := b.idgen.New()
	b.entries = append(b.entries, entry{id: id, file: f, path: destPath})
	return id
}

// AddFileList queues files at their bare names. Returns the batch ids in
// input order.
func (b *Batch) AddFileList(files []File) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = b.AddFile(f, "")
	}
	return ids
}

// AddFS queues every file under root in fsys, depth-first, below dest in
// the drive. root is a path inside fsys ("." for the whole FS); an empty
// dest defaults to root's base name, so a directory entry keeps its own
// name as the top-level folder, matching directory-picker semantics. A
// failure reading one entry is logged and skipped, never aborting the
// batch.
func (b *Batch) AddFS(fsys fs.FS, root, dest string) error {
	info, err := fs.Stat(fsys, root)
	if err != nil {
		return fmt.Errorf("reading %q: %w", root, err)
	}
	if dest == "" {
		if base := path.Base(root); base != "." && base != "/" {
			dest = "/" + base
		} else {
			dest = "/"
		}
	}
	if !info.IsDir() {
		b.addFSFile(fsys, root, dest)
		return nil
	}
	b.addFSDir(fsys, root, dest)
	return nil
}

func (b *Batch) addFSDir(fsys fs.FS, dir, rel string) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		b.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
		return
	}
	for _, e := range entries {
		sub := path.Join(dir, e.Name())
		relSub := path.Join(rel, e.Name())
		if e.IsDir() {
			b.addFSDir(fsys, sub, relSub)
		} else {
			b.addFSFile(fsys, sub, relSub)
		}
	}
}

func (b *Batch) addFSFile(fsys fs.FS, p, rel string) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		b.logger.Warn("skipping unreadable file", "path", p, "error", err)
		return
	}
	name := path.Base(p)
	b.AddFile(File{Name: name, Type: mediatype.TypeByName(name), Data: data}, rel)
}

// Len returns the number of queued files.
func (b *Batch) Len() int { return len(b.entries) }

// IDs returns the batch ids in insertion order.
func (b *Batch) IDs() []string {
	ids := make([]string, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.id
	}
	return ids
}

// Status returns the status record for a batch id, or nil before Upload
// has started or for an unknown id.
func (b *Batch) Status(id string) *FileStatus { return b.status[id] }

// Complete reports whether the batch has finished executing.
func (b *Batch) Complete() bool { return b.complete }

// OnProgress registers a callback fired with the recomputed overall
// progress after every per-server status change.
func (b *Batch) OnProgress(fn func(overall float64)) {
	b.onProgress = append(b.onProgress, fn)
}

// ServerProgress returns (successes + failures) / total files for one
// server. Servers progress independently.
func (b *Batch) ServerProgress(server string) float64 {
	if len(b.entries) == 0 {
		return 0
	}
	done := 0
	for _, e := range b.entries {
		st := b.status[e.id]
		if st == nil {
			continue
		}
		if _, ok := st.Results[server]; ok {
			done++
		}
	}
	return float64(done) / float64(len(b.entries))
}

// Progress returns the unweighted mean of per-server progress across all
// servers of the batch. It is recomputed, not cached.
func (b *Batch) Progress() float64 {
	if len(b.servers) == 0 {
		return 0
	}
	total := 0.0
	for _, server := range b.servers {
		total += b.ServerProgress(server)
	}
	return total / float64(len(b.servers))
}

func (b *Batch) fireProgress() {
	overall := b.Progress()
	for _, fn := range b.onProgress {
		fn(overall)
	}
}

// Upload executes the batch: files strictly in insertion order, servers in
// order within each file. Per-server failures are recorded and do not
// abort anything. After every file has been attempted against every
// server, exactly one Save is invoked on the drive. Upload is a no-op if
// the batch is already running or complete.
func (b *Batch) Upload(ctx context.Context) error {
	if b.running || b.complete {
		return nil
	}
	if err := b.drive.BeginUpload(); err != nil {
		return err
	}
	defer b.drive.EndUpload()
	b.running = true
	defer func() { b.running = false }()

	b.servers = b.drive.Servers()
	for _, e := range b.entries {
		b.status[e.id] = &FileStatus{Results: make(map[string]Result)}
	}

	for _, e := range b.entries {
		b.uploadOne(ctx, e)
		b.status[e.id].Complete = true
	}

	if _, err := b.drive.Save(ctx); err != nil {
		return fmt.Errorf("saving drive after batch: %w", err)
	}
	b.complete = true
	return nil
}

// uploadOne runs a single file against every server. The tree mutation on
// success uses the original pre-encryption declared type: the file's own
// type, else a MIME lookup by its name, else the server's declared type,
// else empty.
func (b *Batch) uploadOne(ctx context.Context, e entry) {
	st := b.status[e.id]

	data := e.file.Data
	contentType := e.file.Type
	wireName := e.file.Name
	if enc, ok := b.drive.(blobEncrypter); ok {
		encrypted, err := enc.EncryptBlob(data)
		if err != nil {
			b.failAll(st, fmt.Errorf("encrypting %q: %w", e.file.Name, err))
			return
		}
		data = encrypted
		contentType = drive.EncryptedBlobType
		wireName = drive.EncryptedBlobName
	}

	// One authorization per file, shared across servers.
	auth, err := b.client.CreateUploadAuth(ctx, b.signer, data, "Upload "+wireName)
	if err != nil {
		b.failAll(st, fmt.Errorf("authorizing %q: %w", e.file.Name, err))
		return
	}

	for _, server := range b.servers {
		desc, err := b.client.Upload(ctx, server, data, contentType, auth)
		if err != nil {
			b.logger.Debug("upload failed", "server", server, "file", e.file.Name, "error", err)
			st.Results[server] = Result{Err: err}
			b.fireProgress()
			continue
		}
		st.Results[server] = Result{Descriptor: desc}

		mimeType := e.file.Type
		if mimeType == "" {
			mimeType = mediatype.TypeByName(e.file.Name)
		}
		if mimeType == "" {
			mimeType = desc.Type
		}
		if _, err := b.drive.SetFile(e.path, desc.SHA256, desc.Size, mimeType); err != nil {
			b.logger.Error("recording upload in tree failed", "path", e.path, "error", err)
		}
		b.fireProgress()
	}
}

// failAll records the same pre-upload error against every server so the
// status maps stay the only completion signal.
func (b *Batch) failAll(st *FileStatus, err error) {
	for _, server := range b.servers {
		st.Results[server] = Result{Err: err}
		b.fireProgress()
	}
}
