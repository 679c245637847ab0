package relayproxy

import "github.com/holiman/uint256"

// Config bundles the relay-proxy's timing-games and validation knobs
// (§4.F).
type Config struct {
	// TimeoutGetHeaderMs bounds how long get_header_with_proofs waits
	// overall, independent of how late into the slot the call arrives.
	TimeoutGetHeaderMs int64
	// LateInSlotTimeMs is how far into the slot header requests are still
	// answered at all; past this, the remaining overall deadline is <= 0.
	LateInSlotTimeMs int64
	// TargetFirstRequestMs is how far into the slot the proxy waits
	// before issuing its first request to a relay (to let the relay's own
	// bid converge before asking).
	TargetFirstRequestMs int64
	// FrequencyGetHeaderMs, if > 0, enables timing games: repeated
	// requests to the same relay no more often than this interval, each
	// time keeping the result with the latest start time.
	FrequencyGetHeaderMs int64
	// MinBidWei rejects any header whose value does not exceed it.
	MinBidWei *uint256.Int
	// SlotTimeSeconds and GenesisTimeUnix locate a slot's start in wall
	// clock time.
	SlotTimeSeconds uint64
	GenesisTimeUnix uint64
}

// DefaultConfig mirrors typical MEV-Boost relay defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutGetHeaderMs:   950,
		LateInSlotTimeMs:     2000,
		TargetFirstRequestMs: 200,
		FrequencyGetHeaderMs: 0,
		MinBidWei:            uint256.NewInt(0),
		SlotTimeSeconds:      12,
	}
}

// SlotStartUnixMillis returns the wall-clock start of slot in unix
// milliseconds.
func (c Config) SlotStartUnixMillis(slot uint64) int64 {
	return int64(c.GenesisTimeUnix)*1000 + int64(slot)*int64(c.SlotTimeSeconds)*1000
}
