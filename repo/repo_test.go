package repo

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fabyulshi/rdedup"
	"github.com/fabyulshi/rdedup/internal/testutil"
	"github.com/fabyulshi/rdedup/rollsum"
)

func testOptions() Options {
	return Options{ChunkerParams: rollsum.Params{WindowSize: 64, AvgBits: 10, MinSize: 256, MaxSize: 2048}}
}

func TestInit_FailsIfPathExists(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Init(dir, testOptions()); err != rdedup.ErrExists {
		t.Fatalf("Init of existing dir = %v, want ErrExists", err)
	}
}

func TestInit_WritesPubKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if sec == (rdedup.SecretKey{}) {
		t.Errorf("secret key is zero")
	}
	if _, err := os.Stat(pubKeyFilePath(path)); err != nil {
		t.Errorf("pub_key file missing: %v", err)
	}
	if r.pubKey == (rdedup.PublicKey{}) {
		t.Errorf("public key is zero")
	}
}

func TestOpen_MissingRepoFails(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), testOptions()); err != rdedup.ErrNotFound {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
}

func TestOpen_MissingPubKeyFails(t *testing.T) {
	path := t.TempDir()
	if _, err := Open(path, testOptions()); err != rdedup.ErrNotFound {
		t.Errorf("Open(no pub_key) = %v, want ErrNotFound", err)
	}
}

func TestOpen_CorruptPubKeyFails(t *testing.T) {
	path := t.TempDir()
	if err := os.WriteFile(pubKeyFilePath(path), []byte("not hex"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Open(path, testOptions())
	if !errors.Is(err, rdedup.ErrInvalidPubKey) {
		t.Errorf("Open(bad pub_key) = %v, want ErrInvalidPubKey", err)
	}
}

// E1
func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	plaintext := bytes.Repeat([]byte{0x00}, 64*1024)
	if err := r.Write("a", bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	chunks, err := r.ListStoredChunks()
	if err != nil {
		t.Fatalf("ListStoredChunks: %v", err)
	}
	if len(chunks) < 1 {
		t.Errorf("expected at least one stored chunk")
	}

	var out bytes.Buffer
	if err := r.Read("a", &out, sec); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("round-trip mismatch")
	}
}

// E4, and the "no wrapper for a single chunk" testable property.
func TestWriteRead_EmptyStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := r.Write("empty", bytes.NewReader(nil)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	root, err := r.rootDigest("empty")
	if err != nil {
		t.Fatalf("rootDigest: %v", err)
	}
	want := rdedup.Digest(sha256.Sum256(nil))
	if root != want {
		t.Errorf("root = %s, want %s", root, want)
	}

	var out bytes.Buffer
	if err := r.Read("empty", &out, sec); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected empty read, got %d bytes", out.Len())
	}
}

// E5
func TestWriteRead_LargeStreamBuildsIndexTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	plaintext := testutil.RandomBytes(42, 256*1024)

	if err := r.Write("big", bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	root, err := r.rootDigest("big")
	if err != nil {
		t.Fatalf("rootDigest: %v", err)
	}
	kind, err := r.store.Classify(root)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if kind != rdedup.IndexKind {
		t.Errorf("root kind = %v, want IndexKind for a multi-chunk stream", kind)
	}

	var out bytes.Buffer
	if err := r.Read("big", &out, sec); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("round-trip mismatch over %d bytes", len(plaintext))
	}
}

// Testable property 6: backup name uniqueness.
func TestWrite_NameAlreadyExistsFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := r.Write("n", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	err = r.Write("n", bytes.NewReader([]byte("second")))
	if err != rdedup.ErrExists {
		t.Fatalf("second Write = %v, want ErrExists", err)
	}

	var out bytes.Buffer
	if err := r.Read("n", &out, sec); err != nil {
		t.Fatalf("Read after failed overwrite: %v", err)
	}
	if out.String() != "first" {
		t.Errorf("original backup was modified: got %q", out.String())
	}
}

// Testable property 3: dedup across writes sharing a prefix.
func TestWrite_DedupsAcrossBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	s1 := testutil.RandomBytes(7, 300*1024)

	if err := r.Write("s1", bytes.NewReader(s1)); err != nil {
		t.Fatalf("Write s1: %v", err)
	}
	before, err := r.ListStoredChunks()
	if err != nil {
		t.Fatalf("ListStoredChunks: %v", err)
	}

	s2 := append([]byte{}, s1...)
	for i := len(s2) - 100; i < len(s2); i++ {
		s2[i] ^= 0xff
	}
	if err := r.Write("s2", bytes.NewReader(s2)); err != nil {
		t.Fatalf("Write s2: %v", err)
	}
	after, err := r.ListStoredChunks()
	if err != nil {
		t.Fatalf("ListStoredChunks: %v", err)
	}

	grew := len(after) - len(before)
	if grew <= 0 || grew > len(after) {
		t.Fatalf("unexpected chunk count delta: before=%d after=%d", len(before), len(after))
	}
	if grew >= len(before) {
		t.Errorf("second write duplicated nearly everything: before=%d after=%d", len(before), len(after))
	}

	var out bytes.Buffer
	if err := r.Read("s2", &out, sec); err != nil {
		t.Fatalf("Read s2: %v", err)
	}
	if !bytes.Equal(out.Bytes(), s2) {
		t.Errorf("s2 round-trip mismatch")
	}
}

// E3 / testable property 8: tamper detection.
func TestRead_DetectsTamperedChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	plaintext := testutil.RandomBytes(99, 128*1024)
	if err := r.Write("x", bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	chunkDirs, err := os.ReadDir(filepath.Join(path, "chunks"))
	if err != nil || len(chunkDirs) == 0 {
		t.Fatalf("expected non-empty chunks dir: %v", err)
	}
	var victim string
	filepath.Walk(filepath.Join(path, "chunks"), func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			victim = p
		}
		return nil
	})
	if victim == "" {
		t.Fatalf("could not find a chunk file to tamper with")
	}
	raw, err := os.ReadFile(victim)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(victim, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	if err := r.Read("x", &out, sec); err == nil {
		t.Fatalf("Read of backup with a tampered chunk unexpectedly succeeded")
	}
}

// E6
func TestRead_WrongSecretKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, _, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Write("x", bytes.NewReader(bytes.Repeat([]byte("data"), 1000))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var wrongSec rdedup.SecretKey
	wrongSec[0] = 0x01
	var out bytes.Buffer
	if err := r.Read("x", &out, wrongSec); !errors.Is(err, rdedup.ErrDecryptionFailed) {
		t.Errorf("Read with wrong secret key = %v, want ErrDecryptionFailed", err)
	}
}

func TestRead_UnknownNameFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, sec, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	var out bytes.Buffer
	if err := r.Read("ghost", &out, sec); err != rdedup.ErrNotFound {
		t.Errorf("Read(unknown) = %v, want ErrNotFound", err)
	}
}

func TestListNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, _, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Write(name, bytes.NewReader([]byte(name))); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	names, err := r.ListNames()
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !got[want] {
			t.Errorf("ListNames missing %q: %v", want, names)
		}
	}
}

func TestListNames_EmptyRepo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, _, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	names, err := r.ListNames()
	if err != nil {
		t.Fatalf("ListNames: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}

func TestWrite_RejectsPathLikeNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo")
	r, _, err := Init(path, testOptions())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, bad := range []string{"", "..", "a/b", "/etc/passwd"} {
		if err := r.Write(bad, bytes.NewReader(nil)); err == nil {
			t.Errorf("Write(%q) unexpectedly succeeded", bad)
		}
	}
}
