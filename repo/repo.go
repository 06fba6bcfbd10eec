// Package repo implements the repository layout: initialization,
// opening, and the write/read/list operations that drive the writer
// pipeline and index reader against an on-disk chunk store.
package repo

import (
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/envelope"
	"github.com/fabyulshi/rdedup/index"
	"github.com/fabyulshi/rdedup/pipeline"
	"github.com/fabyulshi/rdedup/store"
)

const pubKeyFileName = "pub_key"
const backupDirName = "backup"

// Repo is a handle to an on-disk repository: a root path and the
// repository's long-term public key. A Repo is cheap to copy; its
// fields are immutable once the repository is created.
type Repo struct {
	path   string
	pubKey rdedup.PublicKey
	opts   Options
	store  *store.Store
	reader *index.Reader
}

func newRepo(path string, pubKey rdedup.PublicKey, opts Options) *Repo {
	opts = opts.withDefaults()
	s := store.New(path, pubKey, opts.Log)
	return &Repo{
		path:   path,
		pubKey: pubKey,
		opts:   opts,
		store:  s,
		reader: index.NewReader(s),
	}
}

// Init creates a fresh repository at path, generating its long-term
// keypair. It fails with rdedup.ErrExists if path already exists. The
// secret key is returned to the caller and is never written to disk.
func Init(path string, opts Options) (*Repo, rdedup.SecretKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, rdedup.SecretKey{}, rdedup.ErrExists
	} else if !os.IsNotExist(err) {
		return nil, rdedup.SecretKey{}, errors.Wrapf(err, "repo: stat %s", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, rdedup.SecretKey{}, errors.Wrapf(err, "repo: create %s", path)
	}

	pub, sec, err := envelope.GenerateKeypair()
	if err != nil {
		return nil, rdedup.SecretKey{}, errors.Wrap(err, "repo: generate keypair")
	}

	if err := os.WriteFile(pubKeyFilePath(path), []byte(pub.String()), 0o644); err != nil {
		return nil, rdedup.SecretKey{}, errors.Wrap(err, "repo: write pub_key")
	}

	r := newRepo(path, pub, opts)
	r.opts.Log.Infow("initialized repository", "path", path)
	return r, sec, nil
}

// Open loads an existing repository at path, parsing its public key.
// It fails with rdedup.ErrNotFound if path or its pub_key file is
// missing, or rdedup.ErrInvalidPubKey if pub_key is unreadable, not
// hex, or the wrong length.
func Open(path string, opts Options) (*Repo, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, rdedup.ErrNotFound
		}
		return nil, errors.Wrapf(err, "repo: stat %s", path)
	}

	raw, err := os.ReadFile(pubKeyFilePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rdedup.ErrNotFound
		}
		return nil, errors.Wrapf(rdedup.ErrInvalidPubKey, "repo: read pub_key: %v", err)
	}

	pub, err := rdedup.ParsePublicKey(string(raw))
	if err != nil {
		return nil, err
	}

	return newRepo(path, pub, opts), nil
}

// Write chunks reader's contents, persists the resulting chunk tree,
// and records its root digest under backup/<name>. It fails with
// rdedup.ErrExists if name is already taken; in that case the
// previously written backup is untouched and remains readable.
//
// The consumer goroutine is joined before the backup-name file is
// created, so a visible name always has every chunk it can reference
// already on disk.
func (r *Repo) Write(name string, reader io.Reader) error {
	backupPath, err := r.backupPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(backupPath); err == nil {
		return rdedup.ErrExists
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "repo: stat %s", backupPath)
	}

	counting := &countingReader{r: reader}
	p := pipeline.New(r.store, r.opts.ChunkerParams, r.opts.ChannelCapacity, r.opts.Log)
	root, sendErr := pipeline.ChunkAndSend(p, counting, rdedup.DataKind)
	closeErr := p.Close()
	if sendErr != nil {
		return sendErr
	}
	if closeErr != nil {
		return closeErr
	}

	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return errors.Wrapf(err, "repo: mkdir for %s", backupPath)
	}
	f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return rdedup.ErrExists
		}
		return errors.Wrapf(err, "repo: create %s", backupPath)
	}
	defer f.Close()
	if _, err := f.Write(root[:]); err != nil {
		return errors.Wrapf(err, "repo: write %s", backupPath)
	}

	r.opts.Log.Infow("wrote backup", "name", name, "root", root, "size", humanize.Bytes(uint64(counting.n)))
	return nil
}

// countingReader wraps an io.Reader to track total bytes read, purely
// for the human-readable size logged once a write completes.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Read reconstructs backup name's byte stream, writing it to w.
// secretKey must match the repository's public key to decrypt any DATA
// chunk reached; a mismatched key surfaces as
// rdedup.ErrDecryptionFailed.
func (r *Repo) Read(name string, w io.Writer, secretKey rdedup.SecretKey) error {
	root, err := r.rootDigest(name)
	if err != nil {
		return err
	}
	return r.reader.ReadBackup(root, w, &secretKey)
}

// ListNames returns every backup name recorded in the repository.
func (r *Repo) ListNames() ([]string, error) {
	entries, err := os.ReadDir(r.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "repo: list backup names")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListStoredChunks returns the union of every digest stored under
// chunks/ and index/, recovered from their file paths. The source this
// format descends from returns the union rather than tagging digests
// by kind, and this preserves that behavior.
func (r *Repo) ListStoredChunks() (map[rdedup.Digest]struct{}, error) {
	result := map[rdedup.Digest]struct{}{}
	for _, kind := range []rdedup.Kind{rdedup.DataKind, rdedup.IndexKind} {
		digests, err := r.store.ListDigests(kind)
		if err != nil {
			return nil, err
		}
		for _, d := range digests {
			result[d] = struct{}{}
		}
	}
	return result, nil
}

func (r *Repo) rootDigest(name string) (rdedup.Digest, error) {
	path, err := r.backupPath(name)
	if err != nil {
		return rdedup.Digest{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rdedup.Digest{}, rdedup.ErrNotFound
		}
		return rdedup.Digest{}, errors.Wrapf(err, "repo: read %s", path)
	}
	digest, ok := rdedup.DigestFromBytes(raw)
	if !ok {
		return rdedup.Digest{}, rdedup.ErrCorrupted
	}
	return digest, nil
}

func (r *Repo) backupDir() string {
	return filepath.Join(r.path, backupDirName)
}

// backupPath rejects names that would escape the backup directory
// through path separators, since a name is meant to be a single path
// component, not a nested path.
func (r *Repo) backupPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", errors.Errorf("repo: invalid backup name %q", name)
	}
	return filepath.Join(r.backupDir(), name), nil
}

func pubKeyFilePath(repoPath string) string {
	return filepath.Join(repoPath, pubKeyFileName)
}
