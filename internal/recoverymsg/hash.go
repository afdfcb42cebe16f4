// Package recoverymsg builds the message an account signs to reset its proxy
// implementation, and the calldata that travels with it.
package recoverymsg

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/delegate-recovery/pkg/types"
)

// ImplementationSetTypehash must equal the proxy's _IMPLEMENTATION_SET_TYPEHASH.
var ImplementationSetTypehash = crypto.Keccak256Hash([]byte(
	"EIP7702ProxyImplementationSet(uint256 chainId,address proxy,uint256 nonce,address currentImplementation,address newImplementation,bytes callData,address validator)",
))

// resetArguments mirrors the abi.encode(...) in the proxy's setImplementation.
// Order and widths are load-bearing.
var resetArguments = abi.Arguments{
	{Name: "typehash", Type: mustType("bytes32")},
	{Name: "chainId", Type: mustType("uint256")},
	{Name: "proxy", Type: mustType("address")},
	{Name: "nonce", Type: mustType("uint256")},
	{Name: "currentImplementation", Type: mustType("address")},
	{Name: "newImplementation", Type: mustType("address")},
	{Name: "callDataHash", Type: mustType("bytes32")},
	{Name: "validator", Type: mustType("address")},
}

func abiArguments(names ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(names))
	for _, t := range names {
		args = append(args, abi.Argument{Type: mustType(t)})
	}
	return args
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// ImplementationResetHash returns
//
//	keccak256(abi.encode(TYPEHASH, replay ? 0 : chainId, proxy, nonce,
//	    currentImplementation, newImplementation, keccak256(callData), validator))
//
// The signature over this hash is checked by the proxy against the account itself.
func ImplementationResetHash(r types.ImplementationReset) (common.Hash, error) {
	if r.Nonce == nil || r.Nonce.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("invalid nonce: %v", r.Nonce)
	}

	chainID := new(big.Int)
	if !r.AllowCrossChainReplay {
		if r.ChainID == nil || r.ChainID.Sign() <= 0 {
			return common.Hash{}, fmt.Errorf("chain id is required unless cross-chain replay is allowed")
		}
		chainID.Set(r.ChainID)
	}

	encoded, err := resetArguments.Pack(
		[32]byte(ImplementationSetTypehash),
		chainID,
		r.Proxy,
		r.Nonce,
		r.CurrentImplementation,
		r.NewImplementation,
		[32]byte(crypto.Keccak256Hash(r.CallData)),
		r.Validator,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode implementation reset: %w", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// RecoverSigner returns the address that produced sig over hash.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
