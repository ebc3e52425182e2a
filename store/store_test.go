package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	for in, want := range map[string]string{
		"foo.gcode":           "foo.gcode",
		"a/b/../foo.gcode":    "foo.gcode",
		"../../../etc/passwd": "passwd",
		`..\..\windows\x.nc`:  "x.nc",
		"valid_name-1.ngc":    "valid_name-1.ngc",
	} {
		got, ok := SafeName(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "..", "/", "foo bar.gcode", "file\x00.gcode", "ü.nc"} {
		_, ok := SafeName(in)
		assert.False(t, ok, "%q", in)
	}
}

func TestDir_SaveListLinesDelete(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "gcode"))
	require.NoError(t, err)

	require.NoError(t, d.Save("b.nc", strings.NewReader("G0 X1\r\n; c\r\n\r\nG0 Y1\n")))
	require.NoError(t, d.Save("a.gcode", strings.NewReader("G0 Z1")))
	require.NoError(t, os.WriteFile(filepath.Join(d.Path(), "image.png"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(d.Path(), "sub.nc"), 0755))

	files, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []FileInfo{{Name: "a.gcode", Size: 5}, {Name: "b.nc", Size: 20}}, files)

	lines, err := d.Lines("b.nc")
	require.NoError(t, err)
	assert.Equal(t, []string{"G0 X1", "; c", "", "G0 Y1"}, lines)

	_, err = d.Lines("missing.nc")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.Lines("bad name.nc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Delete("b.nc"))
	assert.ErrorIs(t, d.Delete("b.nc"), ErrNotFound)
	_, err = d.Lines("b.nc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDir_EmptyFile(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Save("empty.nc", bytes.NewReader(nil)))

	lines, err := d.Lines("empty.nc")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestDir_SaveRejects(t *testing.T) {
	d, err := Open(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, d.Save("bad name.nc", strings.NewReader("x")), ErrInvalidName)

	big := bytes.NewReader(make([]byte, MaxFileSize+1))
	assert.ErrorIs(t, d.Save("big.nc", big), ErrTooLarge)
	_, err = d.Lines("big.nc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDir_SaveTraversal(t *testing.T) {
	root := t.TempDir()
	d, err := Open(filepath.Join(root, "up"))
	require.NoError(t, err)

	require.NoError(t, d.Save("../escape.nc", strings.NewReader("G0")))
	_, err = os.Stat(filepath.Join(root, "escape.nc"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(d.Path(), "escape.nc"))
	assert.NoError(t, err)
}
