package bundle

import (
	"math/big"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// drawIndex maps the interaction's randomness and the remaining pool size
// to an index in [0, n). Same randomness and pool size always give the same
// index, which keeps opens replayable.
func drawIndex(random string, n int) int {
	sum := sha3.Sum256([]byte(random + ":" + strconv.Itoa(n)))
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, big.NewInt(int64(n))).Int64())
}
