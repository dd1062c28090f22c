package store

import (
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// StoreInfo is a snapshot of store statistics.
type StoreInfo struct {
	Version    uint32            `json:"version"`
	NumPools   int               `json:"num_pools"`
	MaxPools   int               `json:"max_pools"`
	ExpiryMode engine.ExpiryMode `json:"expiry_mode"`
	NumKeys    uint64            `json:"num_keys"`
	FreeSpace  uint64            `json:"free_space"` // Bytes
}

// KeyValueInfo is a snapshot of the metadata of one entry.
type KeyValueInfo struct {
	PoolID   engine.PoolID `json:"pool_id"`
	KeyLen   int           `json:"key_len"`
	ValueLen int           `json:"value_len"`
	Expiry   time.Time     `json:"expiry"`    // Zero if the entry never expires
	GenCount uint32        `json:"gen_count"` // Number of writes to the entry
}

// Expires reports whether the entry has an expiration time.
func (i KeyValueInfo) Expires() bool {
	return !i.Expiry.IsZero()
}

func storeInfoFrom(info engine.StoreInfo) StoreInfo {
	return StoreInfo{
		Version:    info.Version,
		NumPools:   int(info.NumPools),
		MaxPools:   int(info.MaxPools),
		ExpiryMode: info.ExpiryMode,
		NumKeys:    info.NumKeys,
		FreeSpace:  info.FreeSpace,
	}
}

func keyInfoFrom(info engine.KeyInfo) KeyValueInfo {
	kvi := KeyValueInfo{
		PoolID:   info.PoolID,
		KeyLen:   int(info.KeyLen),
		ValueLen: int(info.ValueLen),
		GenCount: info.GenCount,
	}
	if info.Expiry != 0 {
		kvi.Expiry = time.Unix(int64(info.Expiry), 0)
	}
	return kvi
}
