package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_Lifecycle(t *testing.T) {
	l := openTest(t)

	e, err := l.Lookup("frstlvl_wf", "fslroi_epi", 0)
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, l.Begin("frstlvl_wf", "fslroi_epi", 0, "abc"))
	e, err = l.Lookup("frstlvl_wf", "fslroi_epi", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, e.Status)
	assert.Nil(t, e.CompletedAt)

	done, err := l.Done("frstlvl_wf", "fslroi_epi", 0, "abc")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, l.Complete("frstlvl_wf", "fslroi_epi", 0))
	done, err = l.Done("frstlvl_wf", "fslroi_epi", 0, "abc")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = l.Done("frstlvl_wf", "fslroi_epi", 0, "changed")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestLedger_FailAndRetry(t *testing.T) {
	l := openTest(t)

	require.NoError(t, l.Begin("group_wf", "grp_randomise", 2, "f1"))
	require.NoError(t, l.Fail("group_wf", "grp_randomise", 2, 137))

	e, err := l.Lookup("group_wf", "grp_randomise", 2)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, 137, e.ExitCode)
	assert.NotNil(t, e.CompletedAt)

	require.NoError(t, l.Begin("group_wf", "grp_randomise", 2, "f2"))
	e, err = l.Lookup("group_wf", "grp_randomise", 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, e.Status)
	assert.Equal(t, "f2", e.Fingerprint)
	assert.Equal(t, 0, e.ExitCode)
}

func TestLedger_List(t *testing.T) {
	l := openTest(t)

	require.NoError(t, l.Begin("wf", "b", 1, "x"))
	require.NoError(t, l.Begin("wf", "b", 0, "x"))
	require.NoError(t, l.Begin("wf", "a", 0, "x"))
	require.NoError(t, l.Begin("other", "a", 0, "x"))

	execs, err := l.List("wf")
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "a", execs[0].Node)
	assert.Equal(t, 0, execs[1].Index)
	assert.Equal(t, 1, execs[2].Index)
}
