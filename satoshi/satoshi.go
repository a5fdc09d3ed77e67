// Package satoshi converts the node's decimal-string coin values into the
// canonical integer satoshi form used everywhere above the extraction
// boundary.
package satoshi

import (
	"math/big"

	"github.com/pkg/errors"
)

// scale is 10^8, the number of satoshi in one coin.
var scale = big.NewInt(100000000)

// FromDecimalString converts a decimal coin value, as returned by the node
// (e.g. "0.00012345"), into an exact integer satoshi count. It uses
// arbitrary-precision rational arithmetic so that the multiplication by
// 10^8 never loses precision to floating point rounding.
func FromDecimalString(value string) (int64, error) {
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return 0, errors.Errorf("%q is not a valid decimal value", value)
	}

	rat.Mul(rat, new(big.Rat).SetInt(scale))
	if !rat.IsInt() {
		return 0, errors.Errorf("%q does not represent a whole number of satoshi", value)
	}

	return rat.Num().Int64(), nil
}
