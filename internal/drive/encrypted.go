package drive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// EncryptedBlobName is the opaque wire name encrypted blobs travel under.
const EncryptedBlobName = "blob"

// EncryptedBlobType is the fixed on-wire content type for encrypted blobs,
// used regardless of the file's real declared type.
const EncryptedBlobType = "application/octet-stream"

// secret holds the password association for an encrypted drive. It never
// appears in the tree/metadata object graph and is zeroed on lock.
type secret struct {
	password []byte
	logN     int
}

func (s *secret) zero() {
	for i := range s.password {
		s.password[i] = 0
	}
	s.password = nil
}

// EncryptedDrive overlays a lock/unlock lifecycle on the Drive state
// machine. Its manifests keep only the identifier and the scrypt work
// factor public; everything else moves into the encrypted content.
type EncryptedDrive struct {
	*Drive
	cipher Cipher
	secret *secret
	logN   int
	locked bool
}

// NewEncrypted creates an empty encrypted drive in the locked state.
func NewEncrypted(signer Signer, publisher Publisher, downloader BlobDownloader, cipher Cipher, logger Logger, clock Clock) *EncryptedDrive {
	ed := &EncryptedDrive{
		Drive:  New(signer, publisher, downloader, logger, clock),
		cipher: cipher,
		logN:   DefaultScryptLogN,
		locked: true,
	}
	ed.Drive.codec = &encryptedCodec{ed}
	return ed
}

// EncryptedFromEvent creates a locked encrypted drive whose resident state
// is the given genesis event. Only the public fields are available until
// Unlock.
func EncryptedFromEvent(ev *nostr.Event, signer Signer, publisher Publisher, downloader BlobDownloader, cipher Cipher, logger Logger, clock Clock) (*EncryptedDrive, error) {
	ed := NewEncrypted(signer, publisher, downloader, cipher, logger, clock)
	if _, err := ed.Update(ev); err != nil {
		return nil, err
	}
	return ed, nil
}

// Locked reports whether the drive's decrypted state is unavailable.
func (ed *EncryptedDrive) Locked() bool { return ed.locked }

// ScryptLogN returns the drive's key-derivation cost.
func (ed *EncryptedDrive) ScryptLogN() int { return ed.logN }

// SetPassword establishes the password and work factor for a brand-new
// drive that has no prior remote state, and unlocks it. It fails once a
// password is associated or a manifest has been observed.
func (ed *EncryptedDrive) SetPassword(password string, logN int) error {
	if !ed.locked || ed.secret != nil {
		return fmt.Errorf("setting password: %w", ErrAlreadyUnlocked)
	}
	if ed.event != nil {
		return fmt.Errorf("setting password: drive already has a manifest, use Unlock")
	}
	if logN < MinScryptLogN {
		logN = MinScryptLogN
	}
	if logN > MaxScryptLogN {
		logN = MaxScryptLogN
	}
	ed.secret = &secret{password: []byte(password), logN: logN}
	ed.logN = logN
	ed.locked = false
	return nil
}

// Unlock associates the password and re-derives tree and metadata by
// decrypting the resident manifest. On any decryption failure the
// association is torn down, the drive stays locked, and the error
// propagates.
func (ed *EncryptedDrive) Unlock(password string) error {
	if ed.event == nil {
		return ErrNoManifest
	}
	if !ed.locked {
		return ErrAlreadyUnlocked
	}
	ed.secret = &secret{password: []byte(password), logN: ed.logN}
	ed.locked = false
	meta, tree, err := ed.codec.decode(ed.event)
	if err != nil {
		ed.secret.zero()
		ed.secret = nil
		ed.locked = true
		return err
	}
	ed.meta = meta
	ed.tree = tree
	ed.modified = false
	ed.fireChange()
	return nil
}

// Lock tears down the password association and discards decrypted state.
// Only the public fields of the resident manifest remain readable.
// Locking an already-locked drive has no effect.
func (ed *EncryptedDrive) Lock() {
	if ed.locked {
		return
	}
	ed.secret.zero()
	ed.secret = nil
	ed.locked = true
	ed.meta = Metadata{}
	ed.tree = NewTree()
	ed.modified = false
	if ed.event != nil {
		if meta, err := publicMetadata(ed.event); err == nil {
			ed.meta = meta
		}
		ed.logN = scryptLogNTag(ed.event)
	}
	ed.fireChange()
}

// EncryptBlob encrypts a blob under the associated password. The drive
// must be unlocked.
func (ed *EncryptedDrive) EncryptBlob(data []byte) ([]byte, error) {
	if ed.locked {
		return nil, ErrLocked
	}
	if ed.secret == nil {
		return nil, ErrNoPassword
	}
	return ed.cipher.Encrypt(data, string(ed.secret.password), ed.secret.logN)
}

// DecryptBlob decrypts a blob under the associated password. The plaintext
// type is not recoverable from the ciphertext; callers supply it.
func (ed *EncryptedDrive) DecryptBlob(data []byte) ([]byte, error) {
	if ed.locked {
		return nil, ErrLocked
	}
	if ed.secret == nil {
		return nil, ErrNoPassword
	}
	return ed.cipher.Decrypt(data, string(ed.secret.password))
}

// DownloadFile retrieves and decrypts the file at path. Server fallback is
// identical to the plain drive's; the returned bytes carry the file's real
// declared name and type.
func (ed *EncryptedDrive) DownloadFile(ctx context.Context, path string, extraServers ...string) (*FileData, error) {
	if ed.locked {
		return nil, ErrLocked
	}
	file, err := ed.tree.File(path)
	if err != nil {
		return nil, err
	}
	ciphertext, err := ed.fetchBlob(ctx, file.SHA256, extraServers)
	if err != nil {
		return nil, err
	}
	plain, err := ed.DecryptBlob(ciphertext)
	if err != nil {
		return nil, err
	}
	return &FileData{Name: file.Name, Type: file.Type, Data: plain}, nil
}

// publicMetadata extracts the fields an encrypted manifest keeps in the
// clear: the identifier and the signing key.
func publicMetadata(ev *nostr.Event) (Metadata, error) {
	meta := Metadata{Pubkey: ev.PubKey}
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == tagIdentifier {
			meta.Identifier = tag[1]
			return meta, nil
		}
	}
	return Metadata{}, ErrMissingIdentifier
}

// encryptedCodec moves everything except the identifier and the scrypt
// work factor into encrypted content: base64(cipher(JSON tag list)).
type encryptedCodec struct {
	ed *EncryptedDrive
}

func (c *encryptedCodec) kind() int { return KindEncryptedDrive }

func (c *encryptedCodec) decode(ev *nostr.Event) (Metadata, *Tree, error) {
	if c.ed.locked {
		// Partial update: public fields only, tree stays empty.
		meta, err := publicMetadata(ev)
		if err != nil {
			return Metadata{}, nil, err
		}
		c.ed.logN = scryptLogNTag(ev)
		return meta, NewTree(), nil
	}
	if c.ed.secret == nil {
		return Metadata{}, nil, ErrNoPassword
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ev.Content)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("decoding manifest content: %w", ErrDecryptFailed)
	}
	plain, err := c.ed.cipher.Decrypt(ciphertext, string(c.ed.secret.password))
	if err != nil {
		return Metadata{}, nil, err
	}
	var inner nostr.Tags
	if err := json.Unmarshal(plain, &inner); err != nil {
		return Metadata{}, nil, fmt.Errorf("parsing decrypted tag list: %w", ErrDecryptFailed)
	}
	c.ed.logN = scryptLogNTag(ev)
	// Feed the decrypted tags through the same extraction as the plain
	// drive, with the outer identifier kept authoritative. Timestamp and
	// content are not part of the decrypted view.
	view := &nostr.Event{Kind: ev.Kind, PubKey: ev.PubKey, Tags: inner}
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == tagIdentifier {
			view.Tags = append(nostr.Tags{tag}, view.Tags...)
			break
		}
	}
	meta, err := ReadEventMetadata(view)
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, TreeFromTags(view.Tags), nil
}

func (c *encryptedCodec) encode(d *Drive) (*nostr.Event, error) {
	ed := c.ed
	if ed.locked {
		return nil, ErrLocked
	}
	if ed.secret == nil {
		return nil, ErrNoPassword
	}
	if d.meta.Identifier == "" {
		return nil, ErrMissingIdentifier
	}
	inner := metadataTags(d.meta)
	inner = append(inner, TreeToTags(d.tree)...)
	plain, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("serializing tag list: %w", err)
	}
	ciphertext, err := ed.cipher.Encrypt(plain, string(ed.secret.password), ed.secret.logN)
	if err != nil {
		return nil, fmt.Errorf("encrypting manifest: %w", err)
	}
	tags := carryOverTags(d.event)
	tags = append(tags,
		nostr.Tag{tagIdentifier, d.meta.Identifier},
		nostr.Tag{tagScryptLogN, strconv.Itoa(ed.secret.logN)},
	)
	return &nostr.Event{
		Kind:      KindEncryptedDrive,
		CreatedAt: d.templateTimestamp(),
		Tags:      tags,
		Content:   base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}
