package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// PublicKeySize is the size of a Solana account address in bytes.
	PublicKeySize = 32

	systemTransferInstruction = 2
)

// systemProgramID is 11111111111111111111111111111111.
var systemProgramID [PublicKeySize]byte

// PublicKey is a decoded account address.
type PublicKey [PublicKeySize]byte

// String encodes the key in base58.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// ParsePublicKey decodes a base58 address and checks its length.
func ParsePublicKey(address string) (PublicKey, error) {
	var key PublicKey
	raw, err := base58.Decode(address)
	if err != nil {
		return key, fmt.Errorf("地址不是合法的 base58: %w", err)
	}
	if len(raw) != PublicKeySize {
		return key, fmt.Errorf("地址长度应为 %d 字节，实际为 %d", PublicKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// PublicKeyOf returns the address of an ed25519 private key.
func PublicKeyOf(priv ed25519.PrivateKey) (PublicKey, error) {
	var key PublicKey
	if len(priv) != ed25519.PrivateKeySize {
		return key, errors.New("私钥长度不正确")
	}
	copy(key[:], priv.Public().(ed25519.PublicKey))
	return key, nil
}

// appendCompactU16 encodes n in Solana's shortvec format: seven bits per
// byte, high bit set while more bytes follow.
func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// transferMessage builds a legacy message holding one SystemProgram transfer.
// Accounts are ordered [from (signer, writable), to (writable), system program (readonly)].
func transferMessage(from, to PublicKey, blockhash [32]byte, lamports uint64) []byte {
	msg := make([]byte, 0, 3+1+3*PublicKeySize+32+1+1+1+2+1+12)
	msg = append(msg, 1, 0, 1)
	msg = appendCompactU16(msg, 3)
	msg = append(msg, from[:]...)
	msg = append(msg, to[:]...)
	msg = append(msg, systemProgramID[:]...)
	msg = append(msg, blockhash[:]...)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2)
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[:4], systemTransferInstruction)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	msg = appendCompactU16(msg, len(data))
	return append(msg, data...)
}

// SignedTransfer is a serialized transaction and its first signature.
type SignedTransfer struct {
	Raw       []byte
	Signature string
}

// BuildTransfer signs a transfer of lamports from the key owner to the given address.
func BuildTransfer(from ed25519.PrivateKey, to string, lamports uint64, blockhash string) (SignedTransfer, error) {
	if lamports == 0 {
		return SignedTransfer{}, errors.New("转账金额必须大于 0")
	}
	sender, err := PublicKeyOf(from)
	if err != nil {
		return SignedTransfer{}, err
	}
	recipient, err := ParsePublicKey(to)
	if err != nil {
		return SignedTransfer{}, err
	}
	if sender == recipient {
		return SignedTransfer{}, errors.New("不能向自己转账")
	}
	hashBytes, err := base58.Decode(blockhash)
	if err != nil || len(hashBytes) != 32 {
		return SignedTransfer{}, fmt.Errorf("区块哈希不合法: %q", blockhash)
	}
	var recent [32]byte
	copy(recent[:], hashBytes)

	msg := transferMessage(sender, recipient, recent, lamports)
	sig := ed25519.Sign(from, msg)

	raw := make([]byte, 0, 1+len(sig)+len(msg))
	raw = appendCompactU16(raw, 1)
	raw = append(raw, sig...)
	raw = append(raw, msg...)
	return SignedTransfer{Raw: raw, Signature: base58.Encode(sig)}, nil
}
