package util

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	wrapped := WrapString(strings.Repeat("word ", 30))
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("user:1", false)
	require.NoError(t, err)
	assert.Equal(t, "user:1", k.String())

	k, err = ParseKey("42", true)
	require.NoError(t, err)
	assert.True(t, k.Equal(store.KeyFromInt64(42)))

	_, err = ParseKey("forty-two", true)
	assert.Error(t, err)

	_, err = ParseKey(strings.Repeat("k", engine.MaxKeySize+1), false)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		64 << 20:        "64.0 MiB",
		3 << 30:         "3.0 GiB",
		(1 << 40) * 5/2: "2.5 TiB",
	}
	for n, want := range tests {
		assert.Equal(t, want, FormatBytes(n), "n=%d", n)
	}
}

func TestFormatExpiry(t *testing.T) {
	assert.Equal(t, "never", FormatExpiry(time.Time{}))
	assert.Contains(t, FormatExpiry(time.Now().Add(time.Hour)), "(in 1h0m0s)")
}

func TestStoreConfigFromFlags(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupStoreFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--engine=mem", "--path=/dev/fkv0", "--expiry=global", "--ttl=90s"}))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	conf, err := GetStoreConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.ImplMem, conf.Engine)
	assert.Equal(t, "/dev/fkv0", conf.Path)
	assert.Equal(t, engine.GlobalExpiry, conf.ExpiryMode)
	assert.Equal(t, 90*time.Second, conf.TTL)
	assert.Equal(t, uint32(1), conf.Version)

	s, err := OpenStore(conf)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 90*time.Second, s.Expiry().TTL())
}

func TestNewEngineInvalid(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupStoreFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--engine=btree"}))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	_, err := GetStoreConfig()
	assert.Error(t, err)
}
