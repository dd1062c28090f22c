package dump

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var formats = []Format{FormatJSON, FormatGOB, FormatBinary}

func testRecords() []Record {
	return []Record{
		{Type: RecTHeader, Tag: "users", Version: 3, ExpiryMode: uint8(engine.GlobalExpiry)},
		{Type: RecTEntry, Key: []byte("k"), Value: []byte("v")},
		{Type: RecTEntry, Key: []byte{0, 0, 0, 42}, Value: []byte{}, ExpireIn: 60},
		{Type: RecTEntry, Key: []byte("large"), Value: bytes.Repeat([]byte{0xab}, 64*1024)},
		{Type: RecTTrailer, Count: 1 << 40},
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			ser, err := NewSerializer(f)
			require.NoError(t, err)

			for i, rec := range testRecords() {
				data, err := ser.Serialize(rec)
				require.NoError(t, err, "record %d", i)

				// deserializing must not keep fields of a previous record
				result := Record{Tag: "stale", Count: 7}
				require.NoError(t, ser.Deserialize(data, &result), "record %d", i)

				if diff := cmp.Diff(rec, result, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("record %d mismatch (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestBinarySerializerCorrupt(t *testing.T) {
	ser := NewBinarySerializer()
	data, err := ser.Serialize(Record{Type: RecTEntry, Key: []byte("key"), Value: []byte("value")})
	require.NoError(t, err)

	var rec Record
	for i := 0; i < len(data); i++ {
		assert.ErrorIs(t, ser.Deserialize(data[:i], &rec), ErrCorrupt, "truncated at %d", i)
	}
	assert.ErrorIs(t, ser.Deserialize(append(data, 0), &rec), ErrCorrupt)
}

func TestParseFormat(t *testing.T) {
	for _, f := range formats {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
	_, err = NewSerializer(Format(9))
	assert.ErrorIs(t, err, ErrCorrupt)
}

// openPool opens a store on eng and returns the pool with the given tag
func openPool(t *testing.T, eng engine.Engine, path string, expiry store.Expiry, tag string) *store.Pool {
	t.Helper()
	s, err := store.Open(eng, path, 1, expiry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	p, err := s.GetOrCreatePool(tag)
	require.NoError(t, err)
	return p
}

func fill(t *testing.T, p *store.Pool, n int, ttl time.Duration) map[string]string {
	t.Helper()
	want := map[string]string{}
	for i := 0; i < n; i++ {
		k, v := fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%d", i)
		val, err := store.WrapValue([]byte(v))
		require.NoError(t, err)
		require.NoError(t, val.SetExpiry(ttl))
		require.NoError(t, p.Put(store.MustKey(k), val))
		want[k] = v
	}
	return want
}

func contents(t *testing.T, p *store.Pool) map[string]string {
	t.Helper()
	got := map[string]string{}
	require.NoError(t, p.Range(func(pair store.KeyValuePair) bool {
		b, err := pair.Value.Copy()
		require.NoError(t, err)
		got[pair.Key.String()] = string(b)
		return true
	}))
	return got
}

func TestDumpRestore(t *testing.T) {
	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			eng := mem.NewMemEngine(nil)
			src := openPool(t, eng, "/dev/src", store.NoExpiry(), "src")
			want := fill(t, src, 150, 0)

			var buf bytes.Buffer
			n, err := Dump(src, &buf, f)
			require.NoError(t, err)
			assert.Equal(t, uint64(150), n)

			dst := openPool(t, eng, "/dev/dst", store.NoExpiry(), "dst")
			hdr, n, err := Restore(dst, &buf, &RestoreOptions{BatchSize: 16})
			require.NoError(t, err)
			assert.Equal(t, uint64(150), n)
			assert.Equal(t, Header{Format: f, Tag: "src", Version: 1, ExpiryMode: engine.NoExpiry}, hdr)

			assert.Equal(t, want, contents(t, dst))
			assert.Zero(t, eng.Outstanding())
		})
	}
}

func TestDumpEmptyPool(t *testing.T) {
	eng := mem.NewMemEngine(nil)
	src := openPool(t, eng, "/dev/src", store.NoExpiry(), "empty")

	var buf bytes.Buffer
	n, err := Dump(src, &buf, FormatBinary)
	require.NoError(t, err)
	assert.Zero(t, n)

	dst := openPool(t, eng, "/dev/dst", store.NoExpiry(), "dst")
	_, n, err = Restore(dst, &buf, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDumpKeepsExpiry(t *testing.T) {
	eng := mem.NewMemEngine(nil)
	src := openPool(t, eng, "/dev/src", store.ArbitraryExpiry(), "ttl")
	fill(t, src, 3, time.Hour)

	var buf bytes.Buffer
	_, err := Dump(src, &buf, FormatJSON)
	require.NoError(t, err)

	dst := openPool(t, eng, "/dev/dst", store.ArbitraryExpiry(), "ttl")
	_, _, err = Restore(dst, &buf, nil)
	require.NoError(t, err)

	info, err := dst.KeyInfo(store.MustKey("key-001"))
	require.NoError(t, err)
	require.True(t, info.Expires())
	assert.WithinDuration(t, time.Now().Add(time.Hour), info.Expiry, 5*time.Second)
}

func TestRestoreCorrupt(t *testing.T) {
	eng := mem.NewMemEngine(nil)
	src := openPool(t, eng, "/dev/src", store.NoExpiry(), "src")
	fill(t, src, 10, 0)

	var buf bytes.Buffer
	_, err := Dump(src, &buf, FormatBinary)
	require.NoError(t, err)
	data := buf.Bytes()

	dst := openPool(t, eng, "/dev/dst", store.NoExpiry(), "dst")

	tests := map[string][]byte{
		"Empty":        nil,
		"BadMagic":     append([]byte("XXXX"), data[4:]...),
		"BadVersion":   append(append([]byte{}, data[:4]...), append([]byte{9}, data[5:]...)...),
		"BadFormat":    append(append([]byte{}, data[:5]...), append([]byte{42}, data[6:]...)...),
		"NoTrailer":    data[:len(data)-10],
		"HalfPreamble": data[:3],
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Restore(dst, bytes.NewReader(input), nil)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
	assert.Zero(t, eng.Outstanding())
}
