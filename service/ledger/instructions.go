package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MintAccountSize is the serialized size of an SPL token mint account.
const MintAccountSize = 82

// System program instruction indices (little-endian u32 discriminants).
const sysCreateAccount uint32 = 0

// SPL token program instruction tags (single-byte discriminants).
const (
	tokenInitializeMint byte = 0
	tokenTransfer       byte = 3
)

// maxDecimals is the widest decimals value the mint layout can represent.
const maxDecimals = 255

// BuildCreateAccount constructs a system-program instruction that allocates
// and funds a new account owned by owningProgram. The caller is responsible
// for lamports covering rent exemption for space bytes; this builder performs
// no network I/O and no balance validation.
func BuildCreateAccount(payer, newAccount solana.PublicKey, lamports, space uint64, owningProgram solana.PublicKey) solana.Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], sysCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owningProgram.Bytes())

	accounts := solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(newAccount).WRITE().SIGNER(),
	}
	return solana.NewInstruction(solana.SystemProgramID, accounts, data)
}

// BuildInitializeMint constructs an SPL-token InitializeMint instruction.
// decimals must be within 0..255; freezeAuthority may be nil to create a mint
// with no freeze authority. The authority keys appear only in the payload, so
// neither needs to sign the initialize instruction itself.
func BuildInitializeMint(mint, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey, decimals int) (solana.Instruction, error) {
	if decimals < 0 || decimals > maxDecimals {
		return nil, fmt.Errorf("%w: decimals must be between 0 and %d, got %d", ErrInvalidParameter, maxDecimals, decimals)
	}

	// tag, decimals, mint authority, freeze authority COption<Pubkey>
	data := make([]byte, 0, 1+1+32+1+32)
	data = append(data, tokenInitializeMint, byte(decimals))
	data = append(data, mintAuthority.Bytes()...)
	if freezeAuthority != nil {
		data = append(data, 1)
		data = append(data, freezeAuthority.Bytes()...)
	} else {
		data = append(data, 0)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(mint).WRITE(),
		solana.Meta(solana.SysVarRentPubkey),
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, data), nil
}

// BuildTransfer constructs an SPL-token Transfer instruction moving amount
// base units between two token accounts, authorized by owner as signer.
// Balance sufficiency is enforced by the network at execution time, not here.
func BuildTransfer(source, destination, owner solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 1+8)
	data[0] = tokenTransfer
	binary.LittleEndian.PutUint64(data[1:9], amount)

	accounts := solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(destination).WRITE(),
		solana.Meta(owner).SIGNER(),
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, data)
}
