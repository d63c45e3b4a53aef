package objstore

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskPutGet(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	ref, err := d.Put("sample.csv", strings.NewReader("name\nbob\n"))
	require.NoError(t, err)
	assert.Equal(t, "sample.csv", ref)

	rc, err := d.Get(ref)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "name\nbob\n", string(b))
}

func TestDiskStripsDirectories(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	ref, err := d.Put("nested/dir/sample.csv", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "sample.csv", ref)
}

func TestDiskRejectsTraversal(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = d.Get("../etc/passwd")
	assert.Error(t, err)
	_, err = d.Get("a/b")
	assert.Error(t, err)
}

func TestDiskGetMissing(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	_, err = d.Get("nope.csv")
	assert.Error(t, err)
}

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	ref, err := m.Put("a.csv", strings.NewReader("hello"))
	require.NoError(t, err)

	rc, err := m.Get(ref)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(b))

	_, err = m.Get("missing")
	assert.Error(t, err)
}
