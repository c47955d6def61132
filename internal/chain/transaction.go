package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Well-known program addresses.
var (
	systemProgram = [32]byte{} // 11111111111111111111111111111111
	tokenProgram  = mustDecodeKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

func mustDecodeKey(encoded string) [32]byte {
	key, err := decodePublicKey(encoded)
	if err != nil {
		panic(fmt.Sprintf("bad program key %s: %v", encoded, err))
	}
	return key
}

// Signer holds the hot wallet's ed25519 keypair.
type Signer struct {
	key       ed25519.PrivateKey
	publicKey [32]byte
}

// NewSignerFromBase58 parses a Solana-format keypair: base58 of the 64-byte
// concatenation of seed and public key.
func NewSignerFromBase58(encoded string) (*Signer, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("hot wallet key is not base58: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("hot wallet key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	s := &Signer{key: ed25519.PrivateKey(raw)}
	copy(s.publicKey[:], raw[ed25519.SeedSize:])
	return s, nil
}

// PublicKey returns the base58 address of the hot wallet.
func (s *Signer) PublicKey() string {
	return base58.Encode(s.publicKey[:])
}

// signTransaction wraps a serialized message into a signed wire transaction,
// base64-encoded for sendTransaction.
func (s *Signer) signTransaction(message []byte) (string, error) {
	signature := ed25519.Sign(s.key, message)

	tx := appendShortVec(nil, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return base64.StdEncoding.EncodeToString(tx), nil
}

// appendShortVec appends n in the compact-u16 encoding transactions use for
// array lengths.
func appendShortVec(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

type instruction struct {
	programIndex byte
	accounts     []byte
	data         []byte
}

// serializeMessage emits a legacy transaction message: header, account
// table, recent blockhash, instructions. Account ordering is the caller's
// responsibility: signers first, then writable non-signers, then read-only.
func serializeMessage(numSigners, numReadonlyUnsigned byte, accounts [][32]byte, blockhash [32]byte, instrs []instruction) []byte {
	msg := []byte{numSigners, 0, numReadonlyUnsigned}

	msg = appendShortVec(msg, len(accounts))
	for _, acct := range accounts {
		msg = append(msg, acct[:]...)
	}

	msg = append(msg, blockhash[:]...)

	msg = appendShortVec(msg, len(instrs))
	for _, in := range instrs {
		msg = append(msg, in.programIndex)
		msg = appendShortVec(msg, len(in.accounts))
		msg = append(msg, in.accounts...)
		msg = appendShortVec(msg, len(in.data))
		msg = append(msg, in.data...)
	}
	return msg
}

// buildTransferMessage encodes a system program transfer of lamports from
// payer to dest.
func buildTransferMessage(payer, dest [32]byte, lamports uint64, blockhash [32]byte) []byte {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2) // SystemInstruction::Transfer
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return serializeMessage(1, 1,
		[][32]byte{payer, dest, systemProgram},
		blockhash,
		[]instruction{{
			programIndex: 2,
			accounts:     []byte{0, 1},
			data:         data,
		}})
}

// buildTokenTransferMessage encodes a token program transfer of base units
// between two token accounts, authorized by owner.
func buildTokenTransferMessage(owner, source, dest [32]byte, units uint64, blockhash [32]byte) []byte {
	data := make([]byte, 9)
	data[0] = 3 // TokenInstruction::Transfer
	binary.LittleEndian.PutUint64(data[1:9], units)

	return serializeMessage(1, 1,
		[][32]byte{owner, source, dest, tokenProgram},
		blockhash,
		[]instruction{{
			programIndex: 3,
			accounts:     []byte{1, 2, 0},
			data:         data,
		}})
}
