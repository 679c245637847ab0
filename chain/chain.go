// Package chain identifies the closed set of consensus networks the gateway
// supports and derives the Commit-Boost BLS signing domain for each of them.
package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Chain names a supported consensus network.
type Chain uint8

const (
	Mainnet Chain = iota
	Holesky
	Helder
	Kurtosis
)

// String implements fmt.Stringer.
func (c Chain) String() string {
	switch c {
	case Mainnet:
		return "mainnet"
	case Holesky:
		return "holesky"
	case Helder:
		return "helder"
	case Kurtosis:
		return "kurtosis"
	default:
		return fmt.Sprintf("chain(%d)", uint8(c))
	}
}

// ErrUnknownChain is returned by Parse for any value outside the supported set.
var ErrUnknownChain = errors.New("chain: unknown chain name")

// Parse resolves a chain by its CHAIN environment-variable spelling.
func Parse(name string) (Chain, error) {
	switch name {
	case "mainnet":
		return Mainnet, nil
	case "holesky":
		return Holesky, nil
	case "helder":
		return Helder, nil
	case "kurtosis":
		return Kurtosis, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
}

// forkVersion is the 4-byte current fork version used in the Commit-Boost
// domain derivation. These are fixed per network and never rotate for the
// purposes of this gateway (the domain depends only on genesis fork data).
func (c Chain) forkVersion() [4]byte {
	switch c {
	case Mainnet:
		return [4]byte{0x00, 0x00, 0x00, 0x00}
	case Holesky:
		return [4]byte{0x01, 0x01, 0x70, 0x00}
	case Helder:
		return [4]byte{0x10, 0x00, 0x00, 0x00}
	case Kurtosis:
		return [4]byte{0x10, 0x00, 0x00, 0x38}
	default:
		panic(fmt.Sprintf("chain: forkVersion called on unknown chain %d", c))
	}
}

// ChainID returns the EIP-155 chain id used to validate transaction
// signatures before preflight.
func (c Chain) ChainID() uint64 {
	switch c {
	case Mainnet:
		return 1
	case Holesky:
		return 17000
	case Helder:
		return 7014190335
	case Kurtosis:
		return 3151908
	default:
		panic(fmt.Sprintf("chain: ChainID called on unknown chain %d", c))
	}
}

// domainMask is the 4-byte Commit-Boost signing-domain separator, the ASCII
// bytes "mmoC" read as the constant 0x6D6D6F43.
var domainMask = [4]byte{0x6D, 0x6D, 0x6F, 0x43}

// zeroGenesisValidatorsRoot is used in place of the network's real genesis
// validators root: the Commit-Boost domain is defined independent of the
// actual beacon-chain genesis state, using an all-zero placeholder root.
var zeroGenesisValidatorsRoot [32]byte

// Domain is the 32-byte Commit-Boost BLS signing domain for c.
type Domain [32]byte

// CommitBoostDomain computes the signing domain: the first 4 bytes of
// domainMask concatenated with the first 28 bytes of
// compute_fork_data_root(fork_version, zero_genesis_validators_root).
func (c Chain) CommitBoostDomain() Domain {
	root := computeForkDataRoot(c.forkVersion(), zeroGenesisValidatorsRoot)
	var d Domain
	copy(d[0:4], domainMask[:])
	copy(d[4:32], root[0:28])
	return d
}

// computeForkDataRoot computes the SSZ hash-tree-root of the two-field
// ForkData container {current_version: Bytes4, genesis_validators_root:
// Bytes32}. Both fields already occupy exactly one 32-byte chunk, so the
// root is simply sha256 of the two chunks concatenated (a 2-leaf Merkle
// tree needs no padding).
func computeForkDataRoot(version [4]byte, genesisValidatorsRoot [32]byte) [32]byte {
	var versionChunk [32]byte
	copy(versionChunk[0:4], version[:])
	h := sha256.New()
	h.Write(versionChunk[:])
	h.Write(genesisValidatorsRoot[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
