package recoverymsg

import (
	"fmt"
	"math/big"

	"github.com/better-wallet/delegate-recovery/internal/eth"
	"github.com/better-wallet/delegate-recovery/pkg/types"
)

const walletABI = `[
	{"type":"function","name":"initialize","stateMutability":"payable","inputs":[{"name":"owners","type":"bytes[]"}],"outputs":[]}
]`

const proxyABI = `[
	{"type":"function","name":"setImplementation","stateMutability":"nonpayable","inputs":[
		{"name":"newImplementation","type":"address"},
		{"name":"callData","type":"bytes"},
		{"name":"validator","type":"address"},
		{"name":"signature","type":"bytes"},
		{"name":"allowCrossChainReplay","type":"bool"}
	],"outputs":[]}
]`

var (
	wallet = eth.MustParseABI(walletABI)
	proxy  = eth.MustParseABI(proxyABI)

	passkeyOwner = abiArguments("uint256", "uint256")
)

// OwnerInitCallData encodes initialize(bytes[] owners) installing cred as the
// sole owner. A passkey owner is abi.encode(x, y).
func OwnerInitCallData(cred *types.NewOwnerCredential) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}
	owner, err := EncodePasskeyOwner(cred.PublicKeyX, cred.PublicKeyY)
	if err != nil {
		return nil, err
	}
	data, err := wallet.Pack("initialize", [][]byte{owner})
	if err != nil {
		return nil, fmt.Errorf("failed to pack initialize: %w", err)
	}
	return data, nil
}

// EncodePasskeyOwner encodes a P-256 public key the way the wallet stores owners
func EncodePasskeyOwner(x, y *big.Int) ([]byte, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("public key coordinates are required")
	}
	owner, err := passkeyOwner.Pack(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to encode passkey owner: %w", err)
	}
	return owner, nil
}

// DecodeOwnerInitCallData returns the owners installed by initialize calldata
func DecodeOwnerInitCallData(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	method, err := wallet.MethodById(data[:4])
	if err != nil || method.Name != "initialize" {
		return nil, fmt.Errorf("calldata is not initialize(bytes[])")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack initialize: %w", err)
	}
	owners, ok := values[0].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected owners type %T", values[0])
	}
	return owners, nil
}

// SetImplementationCallData packs the proxy call a relay submits for a signed reset
func SetImplementationCallData(reset *types.SignedImplementationReset) ([]byte, error) {
	callData := reset.CallData
	if callData == nil {
		callData = []byte{}
	}
	data, err := proxy.Pack("setImplementation",
		reset.NewImplementation,
		callData,
		reset.Validator,
		reset.Signature,
		reset.AllowCrossChainReplay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack setImplementation: %w", err)
	}
	return data, nil
}
