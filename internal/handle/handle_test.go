package handle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5par/internal/h5api"
)

type closeLog struct {
	ids []h5api.ID
	err error
}

func (c *closeLog) release(id h5api.ID) error {
	c.ids = append(c.ids, id)
	return c.err
}

func TestRelease_ExactlyOnce(t *testing.T) {
	var log closeLog
	h, err := New(10, KindDataset, log.release)
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	assert.Equal(t, []h5api.ID{10}, log.ids)
	assert.True(t, h.Released())
	assert.ErrorIs(t, h.Retain(), ErrReleased)
}

func TestRelease_ParentAfterChildren(t *testing.T) {
	var log closeLog
	file, err := New(1, KindFile, log.release)
	require.NoError(t, err)
	group, err := New(2, KindGroup, log.release, WithParent(file))
	require.NoError(t, err)
	dataset, err := New(3, KindDataset, log.release, WithParent(group))
	require.NoError(t, err)

	// Owners drop their references top-down; closes still run bottom-up.
	require.NoError(t, file.Release())
	require.NoError(t, group.Release())
	assert.Empty(t, log.ids)

	require.NoError(t, dataset.Release())
	assert.Equal(t, []h5api.ID{3, 2, 1}, log.ids)
}

func TestRelease_RetainDefersClose(t *testing.T) {
	var log closeLog
	h, err := New(5, KindDatatype, log.release)
	require.NoError(t, err)
	require.NoError(t, h.Retain())

	require.NoError(t, h.Release())
	assert.Empty(t, log.ids)
	require.NoError(t, h.Release())
	assert.Equal(t, []h5api.ID{5}, log.ids)
}

func TestRelease_ErrorStillReleasesParent(t *testing.T) {
	parentLog := closeLog{}
	childLog := closeLog{err: errors.New("still in use")}

	parent, err := New(1, KindFile, parentLog.release)
	require.NoError(t, err)
	child, err := New(2, KindDataspace, childLog.release, WithParent(parent))
	require.NoError(t, err)
	require.NoError(t, parent.Release())

	err = child.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still in use")
	assert.Equal(t, []h5api.ID{1}, parentLog.ids)
}

func TestStatic_NeverCallsRuntime(t *testing.T) {
	h := Static(h5api.NativeDouble, KindDatatype)
	assert.False(t, h.Owned())
	assert.Equal(t, h5api.NativeDouble, h.ID())
	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
}

func TestNew_ReleasedParent(t *testing.T) {
	var log closeLog
	parent, err := New(1, KindGroup, log.release)
	require.NoError(t, err)
	require.NoError(t, parent.Release())

	_, err = New(2, KindDataset, log.release, WithParent(parent))
	require.ErrorIs(t, err, ErrReleased)
}
