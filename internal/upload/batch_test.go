package upload_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/hzrd149/blossom-drive-client/internal/blossom"
	"github.com/hzrd149/blossom-drive-client/internal/drive"
	"github.com/hzrd149/blossom-drive-client/internal/encryption"
	"github.com/hzrd149/blossom-drive-client/internal/mediatype"
	"github.com/hzrd149/blossom-drive-client/internal/testutil"
	"github.com/hzrd149/blossom-drive-client/internal/upload"
)

type batchFixture struct {
	drive     *drive.Drive
	publisher *testutil.RecordingPublisher
	client    *blossom.Client
	servers   []*testutil.BlobServer
}

// newBatchFixture builds a drive backed by n real in-memory blob servers.
func newBatchFixture(t *testing.T, n int) *batchFixture {
	t.Helper()
	fx := &batchFixture{
		publisher: &testutil.RecordingPublisher{},
		client:    blossom.NewClient(nil),
	}
	fx.drive = drive.New(testutil.NewTestSigner(t), fx.publisher, fx.client, drive.NewNopLogger(), testutil.FixedClock())
	fx.drive.SetIdentifier("batch-drive")
	for i := 0; i < n; i++ {
		srv := testutil.NewBlobServer(t)
		fx.servers = append(fx.servers, srv)
		if err := fx.drive.AddServer(srv.URL()); err != nil {
			t.Fatalf("AddServer() error = %v", err)
		}
	}
	return fx
}

func (fx *batchFixture) newBatch(t *testing.T) *upload.Batch {
	t.Helper()
	return upload.NewBatch(fx.drive, fx.client, testutil.NewTestSigner(t), drive.NewNopLogger(), testutil.NewStubIDGenerator())
}

func TestBatch_Upload(t *testing.T) {
	fx := newBatchFixture(t, 2)
	good, bad := fx.servers[0], fx.servers[1]
	bad.FailUploads(true)

	batch := fx.newBatch(t)

	files := []upload.File{
		{Name: "one.txt", Type: "text/plain", Data: []byte("first file")},
		{Name: "two.bin", Data: []byte("second file")},
		{Name: "live.m3u8", Type: "audio/mpegurl", Data: []byte("#EXTM3U")},
	}
	ids := batch.AddFileList(files)
	if batch.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", batch.Len())
	}

	var progress []float64
	batch.OnProgress(func(overall float64) { progress = append(progress, overall) })

	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	t.Run("completion and progress", func(t *testing.T) {
		if !batch.Complete() {
			t.Errorf("batch not complete")
		}
		// Every file was attempted against every server, so both servers
		// sit at 100% even though one failed everything.
		if got := batch.ServerProgress(good.URL()); got != 1.0 {
			t.Errorf("good server progress = %v, want 1.0", got)
		}
		if got := batch.ServerProgress(bad.URL()); got != 1.0 {
			t.Errorf("bad server progress = %v, want 1.0", got)
		}
		if got := batch.Progress(); got != 1.0 {
			t.Errorf("overall progress = %v, want 1.0", got)
		}
		if len(progress) != 6 {
			t.Errorf("progress fired %d times, want one per file per server", len(progress))
		}
		for i := 1; i < len(progress); i++ {
			if progress[i] < progress[i-1] {
				t.Errorf("progress went backwards: %v", progress)
			}
		}
	})

	t.Run("per-server outcomes", func(t *testing.T) {
		for i, id := range ids {
			st := batch.Status(id)
			if st == nil || !st.Complete {
				t.Fatalf("file %d has no complete status", i)
			}
			if st.Results[good.URL()].Err != nil {
				t.Errorf("file %d failed on the good server: %v", i, st.Results[good.URL()].Err)
			}
			if st.Results[good.URL()].Descriptor == nil {
				t.Errorf("file %d has no descriptor from the good server", i)
			}
			if st.Results[bad.URL()].Err == nil {
				t.Errorf("file %d succeeded on the failing server", i)
			}
		}
	})

	t.Run("tree reflects successful uploads", func(t *testing.T) {
		for _, f := range files {
			node, err := fx.drive.File("/" + f.Name)
			if err != nil {
				t.Fatalf("file %q missing from tree: %v", f.Name, err)
			}
			wantSHA := testutil.SHA256Hex(f.Data)
			if node.SHA256 != wantSHA {
				t.Errorf("%q sha = %q, want %q", f.Name, node.SHA256, wantSHA)
			}
			if !good.Has(wantSHA) {
				t.Errorf("good server missing blob for %q", f.Name)
			}
			if bad.Has(wantSHA) {
				t.Errorf("failing server stored blob for %q", f.Name)
			}
		}
	})

	t.Run("declared types", func(t *testing.T) {
		one, _ := fx.drive.File("/one.txt")
		if one.Type != "text/plain" {
			t.Errorf("one.txt type = %q, want declared type", one.Type)
		}
		// The mislabelled playlist was corrected at AddFile time.
		playlist, _ := fx.drive.File("/live.m3u8")
		if playlist.Type != mediatype.PlaylistType {
			t.Errorf("live.m3u8 type = %q, want corrected %q", playlist.Type, mediatype.PlaylistType)
		}
	})

	t.Run("exactly one save at the end", func(t *testing.T) {
		if got := len(fx.publisher.Events); got != 1 {
			t.Errorf("published %d manifests, want 1", got)
		}
	})

	t.Run("upload slot released", func(t *testing.T) {
		if err := fx.drive.BeginUpload(); err != nil {
			t.Errorf("upload slot still held after batch: %v", err)
		}
		fx.drive.EndUpload()
	})

	t.Run("rerunning a complete batch is a no-op", func(t *testing.T) {
		if err := batch.Upload(context.Background()); err != nil {
			t.Errorf("second Upload() error = %v", err)
		}
		if got := len(fx.publisher.Events); got != 1 {
			t.Errorf("second Upload() published again: %d events", got)
		}
	})
}

func TestBatch_UploadSlotContention(t *testing.T) {
	fx := newBatchFixture(t, 1)
	batch := fx.newBatch(t)
	batch.AddFile(upload.File{Name: "f.txt", Data: []byte("x")}, "")

	if err := fx.drive.BeginUpload(); err != nil {
		t.Fatalf("BeginUpload() error = %v", err)
	}
	defer fx.drive.EndUpload()

	if err := batch.Upload(context.Background()); !errors.Is(err, drive.ErrUploadInProgress) {
		t.Errorf("Upload() error = %v, want ErrUploadInProgress", err)
	}
	if batch.Complete() {
		t.Errorf("rejected batch marked complete")
	}
}

func TestBatch_AddFile(t *testing.T) {
	fx := newBatchFixture(t, 1)
	batch := fx.newBatch(t)

	t.Run("destination defaults to the file name", func(t *testing.T) {
		id := batch.AddFile(upload.File{Name: "photo.jpg", Data: []byte("img")}, "")
		if id != "id-1" {
			t.Errorf("batch id = %q, want %q", id, "id-1")
		}
	})

	t.Run("explicit destination path", func(t *testing.T) {
		batch.AddFile(upload.File{Name: "photo.jpg", Data: []byte("img")}, "/albums/2024/photo.jpg")
	})

	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := fx.drive.File("/photo.jpg"); err != nil {
		t.Errorf("defaulted path missing: %v", err)
	}
	if _, err := fx.drive.File("/albums/2024/photo.jpg"); err != nil {
		t.Errorf("explicit path missing: %v", err)
	}
}

func TestBatch_AddFS(t *testing.T) {
	fx := newBatchFixture(t, 1)
	batch := fx.newBatch(t)

	fsys := fstest.MapFS{
		"docs/readme.md":     &fstest.MapFile{Data: []byte("# readme")},
		"docs/sub/notes.txt": &fstest.MapFile{Data: []byte("notes")},
		"docs/sub/data.bin":  &fstest.MapFile{Data: []byte{0x01, 0x02}},
	}

	if err := batch.AddFS(fsys, "docs", ""); err != nil {
		t.Fatalf("AddFS() error = %v", err)
	}
	if batch.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", batch.Len())
	}

	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	readme, err := fx.drive.File("/docs/readme.md")
	if err != nil {
		t.Fatalf("missing /docs/readme.md: %v", err)
	}
	if readme.Type != "text/markdown" {
		t.Errorf("readme type = %q, want inferred text/markdown", readme.Type)
	}
	if _, err := fx.drive.File("/docs/sub/notes.txt"); err != nil {
		t.Errorf("missing nested file: %v", err)
	}
	if _, err := fx.drive.File("/docs/sub/data.bin"); err != nil {
		t.Errorf("missing nested binary: %v", err)
	}
}

func TestBatch_AddFSDirectory(t *testing.T) {
	// A real directory the way the put command hands it over: an os.DirFS
	// rooted at the directory itself, root "." and the directory's name as
	// the destination.
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "trip"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trip", "beach.jpg"), []byte("jpeg2"), 0o644); err != nil {
		t.Fatal(err)
	}

	fx := newBatchFixture(t, 1)
	batch := fx.newBatch(t)

	if err := batch.AddFS(os.DirFS(dir), ".", "/photos"); err != nil {
		t.Fatalf("AddFS() error = %v", err)
	}
	if batch.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", batch.Len())
	}

	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := fx.drive.File("/photos/cover.jpg"); err != nil {
		t.Errorf("missing /photos/cover.jpg: %v", err)
	}
	if _, err := fx.drive.File("/photos/trip/beach.jpg"); err != nil {
		t.Errorf("missing /photos/trip/beach.jpg: %v", err)
	}
}

func TestBatch_SaveFailure(t *testing.T) {
	fx := newBatchFixture(t, 1)
	fx.publisher.Err = errors.New("relay refused")

	batch := fx.newBatch(t)
	batch.AddFile(upload.File{Name: "f.txt", Data: []byte("x")}, "")

	if err := batch.Upload(context.Background()); err == nil {
		t.Fatal("Upload() succeeded with a failing publisher")
	}
	if batch.Complete() {
		t.Errorf("batch marked complete although nothing was published")
	}

	// Once publishing recovers, rerunning the batch finishes it.
	fx.publisher.Err = nil
	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("retried Upload() error = %v", err)
	}
	if !batch.Complete() {
		t.Errorf("retried batch not complete")
	}
	if got := len(fx.publisher.Events); got != 1 {
		t.Errorf("published events = %d, want 1", got)
	}
}

func TestBatch_EncryptedDrive(t *testing.T) {
	publisher := &testutil.RecordingPublisher{}
	client := blossom.NewClient(nil)
	ed := drive.NewEncrypted(testutil.NewTestSigner(t), publisher, client,
		encryption.NewTestCipher(), drive.NewNopLogger(), testutil.FixedClock())
	if err := ed.SetPassword("pw", drive.DefaultScryptLogN); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	ed.SetIdentifier("enc-batch")
	srv := testutil.NewBlobServer(t)
	if err := ed.AddServer(srv.URL()); err != nil {
		t.Fatalf("AddServer() error = %v", err)
	}

	plain := []byte("private document")
	batch := upload.NewBatch(ed, client, testutil.NewTestSigner(t), drive.NewNopLogger(), testutil.NewStubIDGenerator())
	batch.AddFile(upload.File{Name: "doc.txt", Type: "text/plain", Data: plain}, "")

	if err := batch.Upload(context.Background()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	f, err := ed.File("/doc.txt")
	if err != nil {
		t.Fatalf("file missing from tree: %v", err)
	}

	t.Run("server stores ciphertext", func(t *testing.T) {
		if f.SHA256 == testutil.SHA256Hex(plain) {
			t.Errorf("tree references the plaintext hash")
		}
		stored := srv.Blob(f.SHA256)
		if stored == nil {
			t.Fatalf("server missing blob %s", f.SHA256)
		}
		if string(stored) == string(plain) {
			t.Errorf("server stores plaintext")
		}
	})

	t.Run("tree keeps the real declared type", func(t *testing.T) {
		if f.Type != "text/plain" {
			t.Errorf("type = %q, want the pre-encryption declared type", f.Type)
		}
	})

	t.Run("download round trip", func(t *testing.T) {
		got, err := ed.DownloadFile(context.Background(), "/doc.txt")
		if err != nil {
			t.Fatalf("DownloadFile() error = %v", err)
		}
		if string(got.Data) != string(plain) {
			t.Errorf("data = %q, want decrypted plaintext", got.Data)
		}
		if got.Name != "doc.txt" {
			t.Errorf("name = %q, want real file name", got.Name)
		}
	})
}
