package staking

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// WeightChangeDigest produces the message a weight authorisation must sign:
// the keccak hash of the ledger identity, the stakeholder address and the
// requested weight as a 32-byte big-endian integer. Binding all three keeps a
// signature from being replayed against another ledger, another account or
// another weight.
func WeightChangeDigest(ledgerID string, addr [20]byte, weight uint64) []byte {
	var weightBytes [32]byte
	new(big.Int).SetUint64(weight).FillBytes(weightBytes[:])

	payload := make([]byte, 0, len(ledgerID)+len(addr)+len(weightBytes))
	payload = append(payload, []byte(ledgerID)...)
	payload = append(payload, addr[:]...)
	payload = append(payload, weightBytes[:]...)
	return ethcrypto.Keccak256(payload)
}

// recoverWeightSigner recovers the address that signed the weight change
// digest. Returns ErrInvalidSignature when the signature is malformed.
func recoverWeightSigner(digest, sig []byte) ([20]byte, error) {
	var signer [20]byte
	if len(sig) != signatureLength {
		return signer, ErrInvalidSignature
	}
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return signer, ErrInvalidSignature
	}
	copy(signer[:], ethcrypto.PubkeyToAddress(*pubKey).Bytes())
	return signer, nil
}

func (e *CompoundEngine) verifyWeightSignature(p Params, addr [20]byte, weight uint64, sig []byte) error {
	return verifyWeightSignature(p, e.ledgerID, addr, weight, sig)
}

func verifyWeightSignature(p Params, ledgerID string, addr [20]byte, weight uint64, sig []byte) error {
	digest := WeightChangeDigest(ledgerID, addr, weight)
	signer, err := recoverWeightSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != p.SignatureAddress {
		return ErrInvalidSignature
	}
	return nil
}
