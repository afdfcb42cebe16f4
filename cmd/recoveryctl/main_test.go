package main

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    common.Address
		wantErr bool
	}{
		{"checksummed", "0x7702cb554e6bFb442cb743A7dF23154544a7176C", common.HexToAddress("0x7702cb554e6bFb442cb743A7dF23154544a7176C"), false},
		{"lowercase", "0x7702cb554e6bfb442cb743a7df23154544a7176c", common.HexToAddress("0x7702cb554e6bFb442cb743A7dF23154544a7176C"), false},
		{"short", "0x1234", common.Address{}, true},
		{"not hex", "alice.eth", common.Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAccount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoverRejectsAmbiguousTargets(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		all     bool
		wantErr string
	}{
		{"neither", nil, false, "pass account addresses or --all"},
		{"both", []string{"0x7702cb554e6bFb442cb743A7dF23154544a7176C"}, true, "pass account addresses or --all, not both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recoverAll = tt.all
			defer func() { recoverAll = false }()

			err := runRecover(recoverCmd, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	inspectCmd.SetOut(&out)
	defer inspectCmd.SetOut(nil)

	require.NoError(t, printJSON(inspectCmd, map[string]int{"accounts": 2}))
	assert.Equal(t, "{\n  \"accounts\": 2\n}\n", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"inspect", "recover", "keygen", "migrate", "relay"} {
		assert.True(t, names[want], want)
	}
}
