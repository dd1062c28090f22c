package store

import (
	"fmt"
	"math"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Expiry is the expiration policy of a store. The only inhabitants are
// NoExpiry(), ArbitraryExpiry() and the values returned by GlobalExpiry, so a
// ttl only exists where it has a meaning.
type Expiry interface {
	// Mode returns the engine expiry mode.
	Mode() engine.ExpiryMode
	// TTL returns the store wide ttl (zero unless the mode is engine.GlobalExpiry).
	TTL() time.Duration

	fmt.Stringer
	sealed()
}

type noExpiry struct{}

func (noExpiry) Mode() engine.ExpiryMode { return engine.NoExpiry }
func (noExpiry) TTL() time.Duration      { return 0 }
func (noExpiry) String() string          { return engine.NoExpiry.String() }
func (noExpiry) sealed()                 {}

type arbitraryExpiry struct{}

func (arbitraryExpiry) Mode() engine.ExpiryMode { return engine.ArbitraryExpiry }
func (arbitraryExpiry) TTL() time.Duration      { return 0 }
func (arbitraryExpiry) String() string          { return engine.ArbitraryExpiry.String() }
func (arbitraryExpiry) sealed()                 {}

type globalExpiry struct {
	ttl uint32 // seconds
}

func (globalExpiry) Mode() engine.ExpiryMode { return engine.GlobalExpiry }
func (g globalExpiry) TTL() time.Duration    { return time.Duration(g.ttl) * time.Second }
func (g globalExpiry) String() string        { return fmt.Sprintf("%s(%s)", engine.GlobalExpiry, g.TTL()) }
func (globalExpiry) sealed()                 {}

// NoExpiry returns the policy under which entries never expire.
func NoExpiry() Expiry {
	return noExpiry{}
}

// ArbitraryExpiry returns the policy under which every entry carries its own
// ttl (see Value.SetExpiry).
func ArbitraryExpiry() Expiry {
	return arbitraryExpiry{}
}

// GlobalExpiry returns the policy under which every entry expires ttl after
// its last write. ttl must be a positive number of whole seconds that fits
// into 32 bits.
func GlobalExpiry(ttl time.Duration) (Expiry, error) {
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return nil, err
	}
	if secs == 0 {
		return nil, NewError("expiry", RetCInvalidArgument, "global expiry requires a positive ttl")
	}
	return globalExpiry{ttl: secs}, nil
}

// ExpiryFromMode builds the policy for an engine mode (ttl is only used for
// engine.GlobalExpiry).
func ExpiryFromMode(mode engine.ExpiryMode, ttl time.Duration) (Expiry, error) {
	switch mode {
	case engine.NoExpiry:
		return NoExpiry(), nil
	case engine.ArbitraryExpiry:
		return ArbitraryExpiry(), nil
	case engine.GlobalExpiry:
		return GlobalExpiry(ttl)
	default:
		return nil, NewError("expiry", RetCInvalidArgument, fmt.Sprintf("unknown expiry mode %d", mode))
	}
}

// ttlSeconds validates a ttl and converts it to whole seconds
func ttlSeconds(ttl time.Duration) (uint32, error) {
	if ttl < 0 {
		return 0, NewError("expiry", RetCInvalidArgument, fmt.Sprintf("negative ttl %s", ttl))
	}
	if ttl%time.Second != 0 {
		return 0, NewError("expiry", RetCInvalidArgument, fmt.Sprintf("ttl %s is not a whole number of seconds", ttl))
	}
	secs := ttl / time.Second
	if secs > math.MaxUint32 {
		return 0, NewError("expiry", RetCInvalidArgument, fmt.Sprintf("ttl %s is too large", ttl))
	}
	return uint32(secs), nil
}
