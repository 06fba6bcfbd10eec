package index

import (
	"bytes"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/fabyulshi/rdedup"
)

// fakeStore is a minimal in-memory stand-in for *store.Store, letting
// this package's tests exercise recursion shape without touching disk.
type fakeStore struct {
	data  map[rdedup.Digest][]byte
	index map[rdedup.Digest][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[rdedup.Digest][]byte{}, index: map[rdedup.Digest][]byte{}}
}

func (f *fakeStore) putData(plaintext []byte) rdedup.Digest {
	d := rdedup.Digest(sha256.Sum256(plaintext))
	f.data[d] = plaintext
	return d
}

func (f *fakeStore) putIndex(blob []byte) rdedup.Digest {
	d := rdedup.Digest(sha256.Sum256(blob))
	f.index[d] = blob
	return d
}

func (f *fakeStore) Classify(digest rdedup.Digest) (rdedup.Kind, error) {
	if _, ok := f.index[digest]; ok {
		return rdedup.IndexKind, nil
	}
	if _, ok := f.data[digest]; ok {
		return rdedup.DataKind, nil
	}
	return 0, rdedup.ErrNotFound
}

func (f *fakeStore) Get(digest rdedup.Digest, kind rdedup.Kind, w io.Writer, secretKey *rdedup.SecretKey) error {
	var src map[rdedup.Digest][]byte
	if kind == rdedup.DataKind {
		src = f.data
	} else {
		src = f.index
	}
	b, ok := src[digest]
	if !ok {
		return rdedup.ErrNotFound
	}
	_, err := w.Write(b)
	return err
}

func TestReader_SingleDataChunk(t *testing.T) {
	fs := newFakeStore()
	plaintext := []byte("hello, rdedup")
	root := fs.putData(plaintext)

	r := NewReader(fs)
	var out bytes.Buffer
	if err := r.ReadBackup(root, &out, nil); err != nil {
		t.Fatalf("ReadBackup: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("got %q, want %q", out.Bytes(), plaintext)
	}
}

func TestReader_WrappedSingleLevelIndex(t *testing.T) {
	fs := newFakeStore()
	a := fs.putData([]byte("first chunk"))
	b := fs.putData([]byte("second chunk"))

	blob := append(append([]byte{}, a[:]...), b[:]...)
	inner := fs.putIndex(blob)
	wrapper := fs.putIndex(inner[:])

	r := NewReader(fs)
	var out bytes.Buffer
	if err := r.ReadBackup(wrapper, &out, nil); err != nil {
		t.Fatalf("ReadBackup: %v", err)
	}
	want := "first chunksecond chunk"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestReader_MultiLevelIndex(t *testing.T) {
	fs := newFakeStore()
	var leafDigests [][]byte
	var want bytes.Buffer
	for i := 0; i < 3; i++ {
		data := bytes.Repeat([]byte{byte('a' + i)}, 10)
		want.Write(data)
		d := fs.putData(data)
		leafDigests = append(leafDigests, d[:])
	}
	left := fs.putIndex(bytes.Join(leafDigests[:2], nil))
	right := fs.putIndex(leafDigests[2])
	top := fs.putIndex(append(append([]byte{}, left[:]...), right[:]...))
	wrapper := fs.putIndex(top[:])

	r := NewReader(fs)
	var out bytes.Buffer
	if err := r.ReadBackup(wrapper, &out, nil); err != nil {
		t.Fatalf("ReadBackup: %v", err)
	}
	if out.String() != want.String() {
		t.Errorf("got %q, want %q", out.String(), want.String())
	}
}

func TestReader_CorruptIndexLengthFails(t *testing.T) {
	fs := newFakeStore()
	bad := fs.putIndex([]byte{0x01, 0x02, 0x03})

	r := NewReader(fs)
	var out bytes.Buffer
	err := r.ReadBackup(bad, &out, nil)
	if err != rdedup.ErrCorrupted {
		t.Errorf("err = %v, want ErrCorrupted", err)
	}
}

func TestReader_UnknownDigestFails(t *testing.T) {
	fs := newFakeStore()
	r := NewReader(fs)
	var missing rdedup.Digest
	missing[0] = 0xaa

	var out bytes.Buffer
	if err := r.ReadBackup(missing, &out, nil); err != rdedup.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
