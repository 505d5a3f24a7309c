package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiersHead(t *testing.T) {
	tiers := ForHead().Tiers()
	require.Len(t, tiers, 1)
	assert.Equal(t, ForHead(), tiers[0])
}

func TestTiersChangeSet(t *testing.T) {
	tiers := ForChangeSet(7).Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, ForChangeSet(7), tiers[0])
	assert.Equal(t, ForHead(), tiers[1])
}

func TestTiersEditSession(t *testing.T) {
	tiers := ForEditSession(7, 21).Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, ForEditSession(7, 21), tiers[0])
	assert.Equal(t, ForChangeSet(7), tiers[1])
	assert.Equal(t, ForHead(), tiers[2])
}

func TestWithDeletedPropagatesToTiers(t *testing.T) {
	for _, tier := range ForEditSession(7, 21).WithDeleted().Tiers() {
		assert.True(t, tier.IncludeDeleted)
	}
}

func TestSentinels(t *testing.T) {
	v := ForHead()
	assert.False(t, v.InChangeSet())
	assert.False(t, v.InEditSession())
	assert.Equal(t, NoChangeSet, v.ChangeSetPk)
	assert.Equal(t, NoEditSession, v.EditSessionPk)

	v = ForEditSession(3, 9)
	assert.True(t, v.InChangeSet())
	assert.True(t, v.InEditSession())
}
