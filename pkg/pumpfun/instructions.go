// Package pumpfun builds raw pump.fun program instructions.
//
// The launch bundle embeds these directly: one create, one creator buy, and
// one buy per bundle wallet. Post-launch automation reuses the buy and sell
// builders for holder wallets.
package pumpfun

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/0xkatana/launchkit/pkg/constants"
)

// FeeRecipient is the pump.fun protocol fee account.
var FeeRecipient = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")

// Anchor instruction discriminators.
var (
	createDiscriminator = [8]byte{24, 30, 200, 40, 5, 28, 7, 119}
	buyDiscriminator    = [8]byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator   = [8]byte{51, 230, 133, 164, 1, 127, 131, 173}
)

// Addresses holds the PDA set for one mint.
type Addresses struct {
	Global                 solana.PublicKey
	MintAuthority          solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	EventAuthority         solana.PublicKey
	Metadata               solana.PublicKey
}

// Derive resolves every pump.fun PDA for the given mint.
func Derive(mint solana.PublicKey) (Addresses, error) {
	var a Addresses
	var err error

	a.Global, _, err = solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedGlobal)}, constants.PumpProgramID)
	if err != nil {
		return a, fmt.Errorf("derive global: %w", err)
	}
	a.MintAuthority, _, err = solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedMintAuthority)}, constants.PumpProgramID)
	if err != nil {
		return a, fmt.Errorf("derive mint authority: %w", err)
	}
	a.BondingCurve, _, err = solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedBondingCurve), mint.Bytes()}, constants.PumpProgramID)
	if err != nil {
		return a, fmt.Errorf("derive bonding curve: %w", err)
	}
	a.AssociatedBondingCurve, _, err = solana.FindAssociatedTokenAddress(a.BondingCurve, mint)
	if err != nil {
		return a, fmt.Errorf("derive associated bonding curve: %w", err)
	}
	a.EventAuthority, _, err = solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedEventAuthority)}, constants.PumpProgramID)
	if err != nil {
		return a, fmt.Errorf("derive event authority: %w", err)
	}
	a.Metadata, _, err = solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedMetadata), constants.MetadataProgramID.Bytes(), mint.Bytes()},
		constants.MetadataProgramID)
	if err != nil {
		return a, fmt.Errorf("derive metadata: %w", err)
	}
	return a, nil
}

type createArgs struct {
	Name    string
	Symbol  string
	URI     string
	Creator solana.PublicKey
}

type buyArgs struct {
	Amount     uint64
	MaxSolCost uint64
}

type sellArgs struct {
	Amount       uint64
	MinSolOutput uint64
}

func encodeArgs(discriminator [8]byte, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return buf.Bytes(), nil
}

// NewCreateInstruction builds the token-creation instruction. The mint is a
// fresh keypair and must co-sign the transaction with the creator.
func NewCreateInstruction(mint, creator solana.PublicKey, name, symbol, uri string) (solana.Instruction, error) {
	a, err := Derive(mint)
	if err != nil {
		return nil, err
	}
	data, err := encodeArgs(createDiscriminator, createArgs{
		Name:    name,
		Symbol:  symbol,
		URI:     uri,
		Creator: creator,
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, true),
		solana.NewAccountMeta(a.MintAuthority, false, false),
		solana.NewAccountMeta(a.BondingCurve, true, false),
		solana.NewAccountMeta(a.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(a.Global, false, false),
		solana.NewAccountMeta(constants.MetadataProgramID, false, false),
		solana.NewAccountMeta(a.Metadata, true, false),
		solana.NewAccountMeta(creator, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(constants.AssociatedTokenProgramID, false, false),
		solana.NewAccountMeta(constants.SysvarRentProgramID, false, false),
		solana.NewAccountMeta(a.EventAuthority, false, false),
		solana.NewAccountMeta(constants.PumpProgramID, false, false),
	}
	return solana.NewInstruction(constants.PumpProgramID, accounts, data), nil
}

// NewBuyInstruction builds a bonding-curve buy: amount tokens out for at
// most maxSolCost lamports in.
func NewBuyInstruction(user, mint solana.PublicKey, amount, maxSolCost uint64) (solana.Instruction, error) {
	a, err := Derive(mint)
	if err != nil {
		return nil, err
	}
	associatedUser, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return nil, fmt.Errorf("derive user ata: %w", err)
	}
	data, err := encodeArgs(buyDiscriminator, buyArgs{Amount: amount, MaxSolCost: maxSolCost})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Global, false, false),
		solana.NewAccountMeta(FeeRecipient, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(a.BondingCurve, true, false),
		solana.NewAccountMeta(a.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(associatedUser, true, false),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(constants.SysvarRentProgramID, false, false),
		solana.NewAccountMeta(a.EventAuthority, false, false),
		solana.NewAccountMeta(constants.PumpProgramID, false, false),
	}
	return solana.NewInstruction(constants.PumpProgramID, accounts, data), nil
}

// NewSellInstruction builds a bonding-curve sell: amount tokens in for at
// least minSolOutput lamports out.
func NewSellInstruction(user, mint solana.PublicKey, amount, minSolOutput uint64) (solana.Instruction, error) {
	a, err := Derive(mint)
	if err != nil {
		return nil, err
	}
	associatedUser, _, err := solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return nil, fmt.Errorf("derive user ata: %w", err)
	}
	data, err := encodeArgs(sellDiscriminator, sellArgs{Amount: amount, MinSolOutput: minSolOutput})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Global, false, false),
		solana.NewAccountMeta(FeeRecipient, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(a.BondingCurve, true, false),
		solana.NewAccountMeta(a.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(associatedUser, true, false),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(constants.AssociatedTokenProgramID, false, false),
		solana.NewAccountMeta(constants.TokenProgramID, false, false),
		solana.NewAccountMeta(a.EventAuthority, false, false),
		solana.NewAccountMeta(constants.PumpProgramID, false, false),
	}
	return solana.NewInstruction(constants.PumpProgramID, accounts, data), nil
}
