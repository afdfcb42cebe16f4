package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Storage layout shared with the proxy and wallet contracts. These are fixed
// by the verifier contracts and are not configurable per account.
var (
	// ImplementationSlot is the ERC-1967 implementation slot,
	// keccak256("eip1967.proxy.implementation") - 1.
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

	// OwnerCursorSlot holds nextOwnerIndex, the first word of the multi-owner storage struct.
	OwnerCursorSlot = common.HexToHash("0x97e2c6aad4ce5d562ebfaa00db6b9e0fb66ea5d8162ed5b243f51a2e03086f00")
)

// DelegationCode returns the code an EOA carries once delegated to target
func DelegationCode(target common.Address) []byte {
	return types.AddressToDelegation(target)
}

// ParseDelegation strips the 0xef0100 designator and returns the delegate.
// ok is false for empty code and for code that is not a delegation.
func ParseDelegation(code []byte) (common.Address, bool) {
	return types.ParseDelegation(code)
}
