package writeback

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_ReplaceMiddle(t *testing.T) {
	src := []byte("lr = 0.1\nepochs = 10\nname = 'a'\n")
	got, err := Apply(src, []Splice{{Start: 18, End: 20, Content: []byte("25")}})
	require.NoError(t, err)
	assert.Equal(t, "lr = 0.1\nepochs = 25\nname = 'a'\n", string(got))
	assert.Equal(t, "lr = 0.1\nepochs = 10\nname = 'a'\n", string(src), "source must not be modified")
}

func TestApply_MultipleOutOfOrder(t *testing.T) {
	src := []byte("AAA\nBBB\nCCC\n")
	got, err := Apply(src, []Splice{
		{Start: 8, End: 11, Content: []byte("c")},
		{Start: 0, End: 3, Content: []byte("aaaaa")},
	})
	require.NoError(t, err)
	assert.Equal(t, "aaaaa\nBBB\nc\n", string(got))
}

func TestApply_EmptyContent(t *testing.T) {
	got, err := Apply([]byte("AAA\nBBB\nCCC\n"), []Splice{{Start: 4, End: 8}})
	require.NoError(t, err)
	assert.Equal(t, "AAA\nCCC\n", string(got))
}

func TestApply_NoSplicesCopies(t *testing.T) {
	src := []byte("x = 1\n")
	got, err := Apply(src, nil)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	got[0] = 'y'
	assert.Equal(t, byte('x'), src[0])
}

func TestApply_InvalidRange(t *testing.T) {
	src := []byte("short")
	_, err := Apply(src, []Splice{{Start: 0, End: 100}})
	assert.Error(t, err)

	_, err = Apply(src, []Splice{{Start: 3, End: 1}})
	assert.Error(t, err)
}

func TestApply_Overlap(t *testing.T) {
	_, err := Apply([]byte("0123456789"), []Splice{{Start: 2, End: 5}, {Start: 4, End: 6}})
	assert.Error(t, err)
}

func TestWriteFile_ReplacesContent(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "scripts/train.py", []byte("old\n"), 0o644))

	require.NoError(t, WriteFile(fs, "scripts/train.py", []byte("new\n")))

	got, err := util.ReadFile(fs, "scripts/train.py")
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(got))

	entries, err := fs.ReadDir("scripts")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}
