// Package fallbackbuilder seals a local execution payload for a slot when
// no relay returns a valid proofed bid in time (§4.G): it assembles a
// header around the slot's committed transactions, iteratively reconciles
// it against the local execution client's engine_newPayloadV3 hints, and
// hands the relay-proxy a payload it knows the local client will accept.
package fallbackbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/constraintstore"
	"github.com/interstate-labs/preconf-gateway/elclient"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/log"
	"github.com/interstate-labs/preconf-gateway/preflight"
	"github.com/interstate-labs/preconf-gateway/relayproxy"
)

// targetBlobGasPerBlock is GAS_PER_BLOB(2^17) * target blobs(3), mainnet's
// EIP-4844 schedule.
const targetBlobGasPerBlock = 3 * 131072

// maxSealIterations bounds the engine_newPayloadV3 hint-reconciliation
// loop (§4.G step 7); exceeding it is fatal, not a slot-skip.
const maxSealIterations = 20

// parentFetchAttempts/parentFetchBackoff/parentFetchTimeout bound fetching
// the parent block the builder seals on top of.
const (
	parentFetchAttempts = 5
	parentFetchBackoff  = 2 * time.Second
	parentFetchTimeout  = 10 * time.Second
)

// Builder is the fallback block builder component.
type Builder struct {
	exec        *elclient.Client
	beacon      *beaconclient.Client
	constraints *constraintstore.Store

	feeRecipient    common.Address
	genesisTimeUnix uint64
	slotTimeSeconds uint64

	log *log.Logger
}

// New builds a Builder sealing payloads against exec/beacon, pulling
// committed transactions for a slot from constraints.
func New(exec *elclient.Client, beacon *beaconclient.Client, constraints *constraintstore.Store, feeRecipient common.Address, genesisTimeUnix, slotTimeSeconds uint64) *Builder {
	return &Builder{
		exec:            exec,
		beacon:          beacon,
		constraints:     constraints,
		feeRecipient:    feeRecipient,
		genesisTimeUnix: genesisTimeUnix,
		slotTimeSeconds: slotTimeSeconds,
		log:             log.Module("fallbackbuilder"),
	}
}

// BuildForSlot implements relayproxy.FallbackBuilder: assemble and seal a
// payload for slot from whatever transactions are currently committed.
func (b *Builder) BuildForSlot(ctx context.Context, slot uint64) (*ethtypes.ExecutionPayload, *relayproxy.Bid, error) {
	parent, err := b.fetchParentWithRetries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fallbackbuilder: parent block: %w", err)
	}

	withdrawals, err := b.beacon.ExpectedWithdrawals(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fallbackbuilder: expected withdrawals: %w", err)
	}
	randao, err := b.beacon.Randao(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fallbackbuilder: randao: %w", err)
	}
	parentBeaconRoot, err := b.beacon.HeadBlockRoot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fallbackbuilder: parent beacon block root: %w", err)
	}

	entries := b.constraints.Entries(slot)
	txs, rawTxs, err := decodeCommittedTransactions(entries)
	if err != nil {
		return nil, nil, err
	}

	basefee := projectBasefee(parent)
	excessBlobGas := projectExcessBlobGas(parent)
	blobGasUsed := totalBlobGasUsed(txs)

	payload := &ethtypes.ExecutionPayload{
		ParentHash:    parent.Hash,
		FeeRecipient:  b.feeRecipient,
		PrevRandao:    randao,
		BlockNumber:   parent.Number + 1,
		GasLimit:      parent.GasLimit,
		Timestamp:     hexUint64(b.genesisTimeUnix + slot*b.slotTimeSeconds),
		ExtraData:     ethtypes.DefaultExtraData,
		BaseFeePerGas: bigFromUint256(basefee),
		Transactions:  rawTxs,
		Withdrawals:   toPayloadWithdrawals(withdrawals),
		BlobGasUsed:   hexUint64(blobGasUsed),
		ExcessBlobGas: hexUint64(excessBlobGas),
	}

	blobHashes := versionedBlobHashes(txs)
	if err := b.seal(ctx, payload, blobHashes, parentBeaconRoot); err != nil {
		return nil, nil, err
	}

	bid := &relayproxy.Bid{ValueWei: uint256.NewInt(0)}
	return payload, bid, nil
}
