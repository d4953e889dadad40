package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

const (
	mnemonicEntropyBits = 128
	hardenedOffset      = 0x80000000
)

// SolanaDerivationPath 是 m/44'/501'/0'/0'。
var SolanaDerivationPath = []uint32{44, 501, 0, 0}

// Keypair 是由助记词派生的 Solana 密钥对。
type Keypair struct {
	Private ed25519.PrivateKey
}

// PublicKey 返回 base58 编码的地址。
func (k Keypair) PublicKey() string {
	return base58.Encode(k.Private.Public().(ed25519.PublicKey))
}

// SecretKey 返回 base58 编码的 64 字节私钥（种子加公钥）。
func (k Keypair) SecretKey() string {
	return base58.Encode(k.Private)
}

// NewMnemonic 生成 12 个单词的 BIP39 助记词。
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// DeriveKeypair 按 SLIP-10 从助记词派生 m/44'/501'/0'/0' 上的密钥。
func DeriveKeypair(mnemonic string) (Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Keypair{}, errors.New("助记词不合法")
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, _ := deriveSLIP10(seed, SolanaDerivationPath)
	return Keypair{Private: ed25519.NewKeyFromSeed(key)}, nil
}

// deriveSLIP10 实现 ed25519 曲线的 SLIP-10 派生，所有层级都是硬化的。
func deriveSLIP10(seed []byte, path []uint32) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode = sum[:32], sum[32:]

	for _, index := range path {
		data := make([]byte, 0, 1+32+4)
		data = append(data, 0)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index|hardenedOffset)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data)
		sum = mac.Sum(nil)
		key, chainCode = sum[:32], sum[32:]
	}
	return key, chainCode
}
