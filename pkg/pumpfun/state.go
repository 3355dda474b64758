package pumpfun

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/0xkatana/launchkit/pkg/constants"
	"github.com/0xkatana/launchkit/pkg/types"
)

// BondingCurveState is the on-chain bonding curve account.
type BondingCurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// Unmarshal decodes the account data, skipping the anchor discriminator.
func (s *BondingCurveState) Unmarshal(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(s); err != nil {
		return fmt.Errorf("decode bonding curve: %w", err)
	}
	return nil
}

// Curve converts the on-chain state into a priceable curve.
func (s BondingCurveState) Curve() *Curve {
	return &Curve{
		VirtualSolReserves:   s.VirtualSolReserves,
		VirtualTokenReserves: s.VirtualTokenReserves,
		RealTokenReserves:    s.RealTokenReserves,
	}
}

// AccountFetcher is the single RPC read FetchCurveState needs.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
}

// FetchCurveState reads and decodes the bonding curve account for a mint.
func FetchCurveState(ctx context.Context, client AccountFetcher, mint solana.PublicKey) (BondingCurveState, error) {
	var state BondingCurveState

	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedBondingCurve), mint.Bytes()},
		constants.PumpProgramID,
	)
	if err != nil {
		return state, fmt.Errorf("derive bonding curve: %w", err)
	}

	info, err := client.GetAccountInfo(ctx, addr)
	if err != nil {
		return state, err
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return state, fmt.Errorf("bonding curve for mint %s: %w", mint, types.ErrAccountNotFound)
	}
	if err := state.Unmarshal(info.Value.Data.GetBinary()); err != nil {
		return state, err
	}
	return state, nil
}
