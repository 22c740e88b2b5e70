// Package nftid defines scarcity tiers and the composite token id scheme
// shared by the royalty and bundle contracts. An edition token id has the
// form "<edition>-<TIER>-<baseId>", editions counted from 1.
package nftid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cantata-io/cantata/core"
)

// Tier is a scarcity level with a fixed edition count. Limited tiers carry
// a caller-chosen count.
type Tier struct {
	Name     string
	Editions uint64
}

const limitedName = "LIMITED"

// Standard tiers.
var (
	Unique    = Tier{Name: "UNIQUE", Editions: 1}
	Rare      = Tier{Name: "RARE", Editions: 4}
	Epic      = Tier{Name: "EPIC", Editions: 10}
	Legendary = Tier{Name: "LEGENDARY", Editions: 10}
)

// Limited returns the open-ended tier with a caller-specified edition count.
func Limited(editions uint64) Tier {
	return Tier{Name: limitedName, Editions: editions}
}

// ParseTier resolves a scarcity name, case-insensitively. For "limited" the
// editions argument supplies the count and must be positive; it is ignored
// for fixed tiers.
func ParseTier(name string, editions uint64) (Tier, error) {
	switch strings.ToUpper(name) {
	case Unique.Name:
		return Unique, nil
	case Rare.Name:
		return Rare, nil
	case Epic.Name:
		return Epic, nil
	case Legendary.Name:
		return Legendary, nil
	case limitedName:
		if editions == 0 {
			return Tier{}, core.ErrInvalidScarcity(name)
		}
		return Limited(editions), nil
	default:
		return Tier{}, core.ErrInvalidScarcity(name)
	}
}

// TokenID builds the composite id of one edition.
func TokenID(edition uint64, tier Tier, baseID string) string {
	return fmt.Sprintf("%d-%s-%s", edition, tier.Name, baseID)
}

// EditionIDs lists every edition id of a tier for baseID, in edition order.
func EditionIDs(tier Tier, baseID string) []string {
	ids := make([]string, 0, tier.Editions)
	for i := uint64(1); i <= tier.Editions; i++ {
		ids = append(ids, TokenID(i, tier, baseID))
	}
	return ids
}

// Parsed is a decomposed composite token id.
type Parsed struct {
	Edition  uint64
	TierName string
	BaseID   string
}

// Parse splits a composite token id. The base id may itself contain dashes;
// only the first two segments are structural.
func Parse(tokenID string) (Parsed, error) {
	parts := strings.SplitN(tokenID, "-", 3)
	if len(parts) != 3 {
		return Parsed{}, core.ErrInvalidTokenId(tokenID)
	}
	edition, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || edition == 0 {
		return Parsed{}, core.ErrInvalidTokenId(tokenID)
	}
	return Parsed{Edition: edition, TierName: parts[1], BaseID: parts[2]}, nil
}
