package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/altxchange/spotcore/pkg/exch"
)

// SimChain is the in-repo reference Port: deposit addresses are derived
// deterministically (no storage needed), and withdrawals are "sent" by
// signing the intent with a fresh per-transaction keypair and returning
// the signature's hash as the opaque tx hash.
type SimChain struct {
	chain string

	mu     sync.Mutex
	status map[string]Status
}

// NewSimChain returns a SimChain tagged with the given chain name
// (surfaced only for logging/display).
func NewSimChain(chain string) *SimChain {
	return &SimChain{chain: chain, status: make(map[string]Status)}
}

// AssignDepositAddress derives an EIP-55 checksummed address from the
// last 20 bytes of keccak256("deposit:<userID>:<asset>") — the same pair
// always yields the same
// address, so nothing needs to be persisted.
func (c *SimChain) AssignDepositAddress(userID int64, asset exch.Asset) (string, error) {
	seed := fmt.Sprintf("deposit:%d:%s", userID, asset)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(seed))
	sum := h.Sum(nil)
	return eip55(sum[len(sum)-20:]), nil
}

// SubmitWithdrawal signs (userID, asset, amount, address) with a
// transaction-scoped ECDSA keypair and returns the keccak256 hash of
// the signature as the opaque tx hash.
func (c *SimChain) SubmitWithdrawal(userID int64, asset exch.Asset, amount decimal.Decimal, address string) (string, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("wallet: generate withdrawal key: %w", err)
	}

	intent := fmt.Sprintf("withdraw:%d:%s:%s:%s", userID, asset, amount.String(), address)
	digest := ethcrypto.Keccak256Hash([]byte(intent))

	signature, err := ethcrypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return "", fmt.Errorf("wallet: sign withdrawal intent: %w", err)
	}

	txHash := ethcrypto.Keccak256Hash(signature).Hex()

	c.mu.Lock()
	c.status[txHash] = Status{TxHash: txHash, Confirmed: true, Confirmations: 12}
	c.mu.Unlock()

	return txHash, nil
}

// TransactionStatus returns the status recorded at submission time; a
// real chain adapter would poll a node instead.
func (c *SimChain) TransactionStatus(txHash string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.status[txHash]
	if !ok {
		return Status{}, exch.NewEntityNotFound("transaction hash not known to this chain", "tx_hash", 0)
	}
	return st, nil
}

// eip55 checksum-encodes a 20-byte address the way the teacher's own
// address helper does: keccak256 of the lowercase hex digest decides
// which hex digits are uppercased.
func eip55(addr20 []byte) string {
	hexAddr := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexAddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexAddr))
	copy(out, "0x")
	for i, c := range []byte(hexAddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		var nibble byte
		if i%2 == 0 {
			nibble = (hash[i>>1] >> 4) & 0x0f
		} else {
			nibble = hash[i>>1] & 0x0f
		}
		if nibble >= 8 {
			out[2+i] = byte(strings.ToUpper(string(c))[0])
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}
