// Package lut builds Address Lookup Table program instructions.
//
// The launch bundle references every participating wallet through one
// lookup table so the multi-wallet buy transactions stay under the account
// limit. The table must be created and extended (and those transactions
// confirmed) before any bundle transaction can reference it.
package lut

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/0xkatana/launchkit/pkg/constants"
)

// Instruction enum tags, bincode-encoded as little-endian u32.
const (
	tagCreateLookupTable     uint32 = 0
	tagExtendLookupTable     uint32 = 2
	tagDeactivateLookupTable uint32 = 3
	tagCloseLookupTable      uint32 = 4
)

// DeriveAddress computes the table address for an authority and the recent
// slot the create instruction was built against.
func DeriveAddress(authority solana.PublicKey, recentSlot uint64) (solana.PublicKey, uint8, error) {
	var slotBytes [8]byte
	binary.LittleEndian.PutUint64(slotBytes[:], recentSlot)

	addr, bump, err := solana.FindProgramAddress(
		[][]byte{authority.Bytes(), slotBytes[:]},
		constants.AddressLookupTableProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive lookup table address: %w", err)
	}
	return addr, bump, nil
}

// NewCreateInstruction builds the create-table instruction. The returned
// table address is deterministic for (authority, recentSlot).
func NewCreateInstruction(authority, payer solana.PublicKey, recentSlot uint64) (solana.Instruction, solana.PublicKey, error) {
	table, bump, err := DeriveAddress(authority, recentSlot)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	buf := new(bytes.Buffer)
	writeU32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(writeU32, tagCreateLookupTable)
	buf.Write(writeU32)
	writeU64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(writeU64, recentSlot)
	buf.Write(writeU64)
	buf.WriteByte(bump)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(table, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
	}
	return solana.NewInstruction(constants.AddressLookupTableProgramID, accounts, buf.Bytes()), table, nil
}

// NewExtendInstruction appends addresses to an existing table. The payer
// covers the added rent.
func NewExtendInstruction(table, authority, payer solana.PublicKey, addresses []solana.PublicKey) (solana.Instruction, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("extend requires at least one address")
	}

	buf := new(bytes.Buffer)
	writeU32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(writeU32, tagExtendLookupTable)
	buf.Write(writeU32)
	writeU64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(writeU64, uint64(len(addresses)))
	buf.Write(writeU64)
	for _, addr := range addresses {
		buf.Write(addr.Bytes())
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(table, true, false),
		solana.NewAccountMeta(authority, false, true),
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
	}
	return solana.NewInstruction(constants.AddressLookupTableProgramID, accounts, buf.Bytes()), nil
}
