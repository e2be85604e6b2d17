package jar

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC)

type fixtureEntry struct {
	name   string
	method uint16
	data   string
}

func buildZip(t *testing.T, comment string, entries ...fixtureEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.name, Method: e.method}
		h.SetModTime(stamp)
		w, err := zw.CreateHeader(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sample(t *testing.T) []byte {
	return buildZip(t, "built by tests",
		fixtureEntry{"META-INF/", zip.Store, ""},
		fixtureEntry{"META-INF/MANIFEST.MF", zip.Deflate, "Manifest-Version: 1.0\n"},
		fixtureEntry{"com/example/A.class", zip.Deflate, "class-a"},
		fixtureEntry{"plugin.yml", zip.Store, "name: Example\n"},
		fixtureEntry{"com/example/B.class", zip.Deflate, "class-b"},
	)
}

func TestEntries(t *testing.T) {
	a, err := FromBytes(sample(t))
	require.NoError(t, err)
	assert.Equal(t, 5, a.Len())
	assert.Equal(t, []string{"com/example/A.class", "com/example/B.class"}, a.Entries(".class"))
	assert.Equal(t, []string{"META-INF/MANIFEST.MF", "com/example/A.class", "plugin.yml", "com/example/B.class"}, a.Entries(""))
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	a, err := FromBytes(sample(t))
	require.NoError(t, err)

	got, err := a.Read(ctx, "com/example/A.class")
	require.NoError(t, err)
	assert.Equal(t, "class-a", string(got))

	_, err = a.Read(ctx, "missing.class")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, a.Write("com/example/A.class", []byte("patched")))
	got, err = a.Read(ctx, "com/example/A.class")
	require.NoError(t, err)
	assert.Equal(t, "patched", string(got))
	assert.Equal(t, []string{"com/example/A.class"}, a.Modified())

	assert.Error(t, a.Write("dir/", nil))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = a.Read(cancelled, "plugin.yml")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackagePreservesArchive(t *testing.T) {
	orig := sample(t)
	a, err := FromBytes(orig)
	require.NoError(t, err)
	require.NoError(t, a.Write("com/example/B.class", []byte("patched-b")))
	require.NoError(t, a.Write("new/C.class", []byte("class-c")))

	out, err := a.Package(Deflate)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	assert.Equal(t, "built by tests", zr.Comment)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"META-INF/", "META-INF/MANIFEST.MF", "com/example/A.class",
		"plugin.yml", "com/example/B.class", "new/C.class",
	}, names)

	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(b)
		if f.Name != "META-INF/" {
			assert.Equal(t, zip.Deflate, f.Method, f.Name)
		}
		if f.Name != "new/C.class" {
			assert.True(t, f.Modified.Equal(stamp), "%s modified %v", f.Name, f.Modified)
		}
	}
	assert.Equal(t, "class-a", contents["com/example/A.class"])
	assert.Equal(t, "patched-b", contents["com/example/B.class"])
	assert.Equal(t, "name: Example\n", contents["plugin.yml"])
	assert.Equal(t, "class-c", contents["new/C.class"])

	// Untouched deflated entries are copied without recompression.
	origReader, err := zip.NewReader(bytes.NewReader(orig), int64(len(orig)))
	require.NoError(t, err)
	assert.Equal(t, rawBytes(t, origReader.File[2]), rawBytes(t, zr.File[2]))
}

func rawBytes(t *testing.T, f *zip.File) []byte {
	t.Helper()
	r, err := f.OpenRaw()
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func TestPackageLevel(t *testing.T) {
	a, err := FromBytes(sample(t))
	require.NoError(t, err)
	assert.Error(t, a.SetCompressionLevel(12))
	require.NoError(t, a.SetCompressionLevel(9))
	_, err = a.Package(Deflate)
	require.NoError(t, err)
	_, err = a.Package(99)
	assert.Error(t, err)
}

func TestSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.jar")
	require.NoError(t, WriteFile(path, sample(t)))

	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Write("plugin.yml", []byte("name: Changed\n")))
	require.NoError(t, a.Save(path, Deflate))

	b, err := Open(path)
	require.NoError(t, err)
	got, err := b.Read(context.Background(), "plugin.yml")
	require.NoError(t, err)
	assert.Equal(t, "name: Changed\n", string(got))
}

func TestOpenErrors(t *testing.T) {
	_, err := FromBytes([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrArchiveIO)
	_, err = Open(filepath.Join(t.TempDir(), "absent.jar"))
	assert.ErrorIs(t, err, ErrArchiveIO)
}

func TestNewArchive(t *testing.T) {
	a := New()
	require.NoError(t, a.Write("a/One.class", []byte("one")))
	require.NoError(t, a.Write("plugin.yml", []byte("name: New\n")))
	out, err := a.Package(Store)
	require.NoError(t, err)

	b, err := FromBytes(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/One.class", "plugin.yml"}, b.Entries(""))
	assert.Empty(t, b.Modified())
}
