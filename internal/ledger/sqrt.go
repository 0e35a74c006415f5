package ledger

import "github.com/holiman/uint256"

// Sqrt returns floor(sqrt(x)) using Babylonian iteration seeded at (x+1)/2.
func Sqrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}

	// (x+1)/2 without overflowing at the top of the range.
	z := new(uint256.Int).Rsh(x, 1)
	if x.Uint64()&1 == 1 {
		z.AddUint64(z, 1)
	}

	y := x.Clone()
	next := new(uint256.Int)
	for z.Lt(y) {
		y.Set(z)
		next.Div(x, z)
		next.Add(next, z)
		z.Rsh(next, 1)
	}
	return y
}
