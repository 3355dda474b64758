package pumpfun

import "math/big"

// Initial bonding curve state for a freshly created pump.fun token. Token
// amounts carry 6 decimals.
const (
	InitialVirtualTokenReserves uint64 = 1_073_000_000_000_000
	InitialVirtualSolReserves   uint64 = 30_000_000_000
	InitialRealTokenReserves    uint64 = 793_100_000_000_000
)

// Curve tracks virtual reserves through a sequence of buys. The launch
// bundle's buys execute back to back in one block, so each buy must be
// priced against the curve state left by the previous one.
type Curve struct {
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealTokenReserves    uint64
}

// NewCurve returns the curve state of a token at creation.
func NewCurve() *Curve {
	return &Curve{
		VirtualSolReserves:   InitialVirtualSolReserves,
		VirtualTokenReserves: InitialVirtualTokenReserves,
		RealTokenReserves:    InitialRealTokenReserves,
	}
}

// Apply executes a buy of solIn lamports against the curve and returns the
// token amount out, advancing the reserves. Constant product, computed in
// big integers since the intermediate product overflows uint64.
func (c *Curve) Apply(solIn uint64) uint64 {
	if solIn == 0 {
		return 0
	}

	vSol := new(big.Int).SetUint64(c.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(c.VirtualTokenReserves)

	k := new(big.Int).Mul(vSol, vTok)
	newSol := new(big.Int).Add(vSol, new(big.Int).SetUint64(solIn))
	newTok := new(big.Int).Div(k, newSol)

	tokensOut := new(big.Int).Sub(vTok, newTok).Uint64()
	if tokensOut > c.RealTokenReserves {
		tokensOut = c.RealTokenReserves
	}

	c.VirtualSolReserves += solIn
	c.VirtualTokenReserves -= tokensOut
	c.RealTokenReserves -= tokensOut
	return tokensOut
}

// SolForTokens quotes the SOL out for selling tokenIn against the current
// reserves. Read-only; sells do not advance launch curve state.
func (c *Curve) SolForTokens(tokenIn uint64) uint64 {
	if tokenIn == 0 {
		return 0
	}

	vSol := new(big.Int).SetUint64(c.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(c.VirtualTokenReserves)

	numerator := new(big.Int).Mul(new(big.Int).SetUint64(tokenIn), vSol)
	denominator := new(big.Int).Add(vTok, new(big.Int).SetUint64(tokenIn))
	return new(big.Int).Div(numerator, denominator).Uint64()
}
