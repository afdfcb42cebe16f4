package disruption

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/better-wallet/delegate-recovery/pkg/types"
)

var (
	canonical = types.CanonicalConfig{
		ChainID:                big.NewInt(84532),
		ExpectedDelegate:       common.HexToAddress("0x7702cb554e6bFb442cb743A7dF23154544a7176C"),
		ExpectedImplementation: common.HexToAddress("0x000100abaad02f1cfC8Bbe32bD5a564817339E72"),
	}
	badAddress = common.HexToAddress("0xbAd0000000000000000000000000000000000bAd")
	account    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func fabricate(delegateWrong, implementationWrong, ownershipWrong bool) *types.AccountFacts {
	delegate := canonical.ExpectedDelegate
	if delegateWrong {
		delegate = badAddress
	}
	impl := canonical.ExpectedImplementation
	if implementationWrong {
		impl = badAddress
	}
	cursor := big.NewInt(5)
	if ownershipWrong {
		cursor = big.NewInt(0)
	}
	return &types.AccountFacts{
		Address:        account,
		Code:           ethtypes.AddressToDelegation(delegate),
		Delegate:       &delegate,
		Implementation: impl,
		OwnerCursor:    cursor,
	}
}

func TestClassify_AllCombinations(t *testing.T) {
	for _, expected := range types.AllDisruptionStates() {
		t.Run(expected.String(), func(t *testing.T) {
			facts := fabricate(expected.DelegateWrong(), expected.ImplementationWrong(), expected.OwnershipWrong())

			got := Classify(facts, canonical)

			assert.Equal(t, expected, got)
			assert.Equal(t, expected.DelegateWrong(), got.DelegateWrong())
			assert.Equal(t, expected.ImplementationWrong(), got.ImplementationWrong())
			assert.Equal(t, expected.OwnershipWrong(), got.OwnershipWrong())
		})
	}
}

func TestClassify_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		facts    *types.AccountFacts
		expected types.DisruptionState
	}{
		{
			name: "empty code is not a delegate disruption",
			facts: &types.AccountFacts{
				Implementation: common.Address{},
				OwnerCursor:    big.NewInt(0),
			},
			expected: types.ImplementationWrong | types.OwnershipWrong,
		},
		{
			name: "non-delegation code counts as wrong delegate",
			facts: &types.AccountFacts{
				Code:           []byte{0x60, 0x80, 0x60, 0x40},
				Implementation: canonical.ExpectedImplementation,
				OwnerCursor:    big.NewInt(1),
			},
			expected: types.DelegateWrong,
		},
		{
			name: "nil owner cursor counts as ownership lost",
			facts: &types.AccountFacts{
				Code:           ethtypes.AddressToDelegation(canonical.ExpectedDelegate),
				Delegate:       &canonical.ExpectedDelegate,
				Implementation: canonical.ExpectedImplementation,
			},
			expected: types.OwnershipWrong,
		},
		{
			name: "large owner cursor is healthy",
			facts: &types.AccountFacts{
				Code:           ethtypes.AddressToDelegation(canonical.ExpectedDelegate),
				Delegate:       &canonical.ExpectedDelegate,
				Implementation: canonical.ExpectedImplementation,
				OwnerCursor:    new(big.Int).Lsh(big.NewInt(1), 200),
			},
			expected: types.Healthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.facts, canonical))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	facts := fabricate(true, false, true)

	first := Classify(facts, canonical)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(facts, canonical))
	}
}
