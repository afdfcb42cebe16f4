package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_RejectsInvalidSettings(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	assert.Error(t, InitWithWriter(&buf, "xml", "INFO"))
	assert.Error(t, InitWithWriter(&buf, "json", "TRACE"))
	assert.NoError(t, InitWithWriter(&buf, "text", "debug"))
}

func TestFromContext_Enrichment(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(&buf, "json", "DEBUG"))

	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ctx := WithAccount(WithRequestID(context.Background(), "req-1"), account)

	Info(ctx, "inspected account", "strategy", "none")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "inspected account", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, account.Hex(), record["account"])
	assert.Equal(t, "none", record["strategy"])
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	_, ok := GetAccount(ctx)
	assert.False(t, ok)
}
