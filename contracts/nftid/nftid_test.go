package nftid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cantata-io/cantata/core"
)

func TestParseTier(t *testing.T) {
	for name, editions := range map[string]uint64{
		"unique":    1,
		"RARE":      4,
		"Epic":      10,
		"legendary": 10,
	} {
		tier, err := ParseTier(name, 0)
		require.NoError(t, err, name)
		require.Equal(t, editions, tier.Editions, name)
	}

	limited, err := ParseTier("limited", 25)
	require.NoError(t, err)
	require.Equal(t, uint64(25), limited.Editions)

	_, err = ParseTier("limited", 0)
	require.True(t, core.IsKind(err, core.KindInvalidScarcity))

	_, err = ParseTier("mythic", 0)
	require.True(t, core.IsKind(err, core.KindInvalidScarcity))
}

func TestEditionIDs(t *testing.T) {
	ids := EditionIDs(Rare, "song")
	require.Equal(t, []string{"1-RARE-song", "2-RARE-song", "3-RARE-song", "4-RARE-song"}, ids)
}

func TestParse(t *testing.T) {
	p, err := Parse("3-LEGENDARY-abc-def")
	require.NoError(t, err)
	require.Equal(t, uint64(3), p.Edition)
	require.Equal(t, "LEGENDARY", p.TierName)
	require.Equal(t, "abc-def", p.BaseID)

	for _, bad := range []string{"", "LEGENDARY-abc", "0-RARE-x", "x-RARE-y", "1-RARE"} {
		_, err := Parse(bad)
		require.True(t, core.IsKind(err, core.KindInvalidTokenId), "input %q", bad)
	}
}
