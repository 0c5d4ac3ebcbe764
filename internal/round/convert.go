package round

import (
	"fmt"
	"math/big"
)

// ConvertCoinToToken converts a contributed coin amount into the purchased
// token amount under the round's swap ratio:
//
//	token = contributed * ratioToken * 10^tokenDecimals / (ratioCoin * 10^coinDecimals)
//
// The intermediate product is computed at arbitrary width and floor-divided,
// so the result is exact and deterministic for any uint64 inputs.
func ConvertCoinToToken(contributed, ratioCoin, ratioToken uint64, coinDecimals, tokenDecimals uint8) (uint64, error) {
	if ratioCoin == 0 || ratioToken == 0 {
		return 0, fmt.Errorf("%w: swap ratio components must be > 0", ErrConfig)
	}
	if coinDecimals == 0 || tokenDecimals == 0 {
		return 0, fmt.Errorf("%w: decimals must be > 0", ErrConfig)
	}

	num := new(big.Int).SetUint64(contributed)
	num.Mul(num, new(big.Int).SetUint64(ratioToken))
	num.Mul(num, pow10(tokenDecimals))

	den := new(big.Int).SetUint64(ratioCoin)
	den.Mul(den, pow10(coinDecimals))

	num.Quo(num, den)
	if !num.IsUint64() {
		return 0, fmt.Errorf("%w: converted token amount overflows", ErrCapacity)
	}
	return num.Uint64(), nil
}

// TokensForHardCap returns the token amount the hard cap converts to. The
// owner must deposit at least this much into the token fund before raising.
func TokensForHardCap(hardCap, ratioCoin, ratioToken uint64, coinDecimals, tokenDecimals uint8) (uint64, error) {
	return ConvertCoinToToken(hardCap, ratioCoin, ratioToken, coinDecimals, tokenDecimals)
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
