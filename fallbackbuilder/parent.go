package fallbackbuilder

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/beaconclient"
	"github.com/interstate-labs/preconf-gateway/constraintstore"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/preflight"
)

// parentBlock is the subset of eth_getBlockByNumber("latest") fields the
// builder reads off the execution client's current head.
type parentBlock struct {
	Number        uint64
	Hash          common.Hash
	BaseFeePerGas *uint256.Int
	ExcessBlobGas uint64
	BlobGasUsed   uint64
	GasLimit      uint64
}

// fetchParentWithRetries implements §4.G step 1: 5 retries, 2s backoff, 10s
// per-attempt timeout.
func (b *Builder) fetchParentWithRetries(ctx context.Context) (*parentBlock, error) {
	var lastErr error
	for attempt := 0; attempt < parentFetchAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, parentFetchTimeout)
		hdr, err := b.exec.LatestBlockHeader(attemptCtx)
		cancel()
		if err == nil {
			basefee := uint256.NewInt(0)
			if hdr.BaseFeePerGas != nil {
				if u, overflow := uint256.FromBig((*big.Int)(hdr.BaseFeePerGas)); !overflow {
					basefee = u
				}
			}
			excessBlobGas := uint64(0)
			if hdr.ExcessBlobGas != nil {
				excessBlobGas = uint64(*hdr.ExcessBlobGas)
			}
			blobGasUsed := uint64(0)
			if hdr.BlobGasUsed != nil {
				blobGasUsed = uint64(*hdr.BlobGasUsed)
			}
			return &parentBlock{
				Number:        uint64(hdr.Number),
				Hash:          hdr.Hash,
				BaseFeePerGas: basefee,
				ExcessBlobGas: excessBlobGas,
				BlobGasUsed:   blobGasUsed,
				GasLimit:      uint64(hdr.GasLimit),
			}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-time.After(parentFetchBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fallbackbuilder: parent block unavailable after %d attempts: %w", parentFetchAttempts, lastErr)
}

// projectBasefee assumes a fully-saturated next block, matching the
// worst-case EIP-1559 projection used elsewhere in the gateway.
func projectBasefee(parent *parentBlock) *uint256.Int {
	return preflight.ProjectBasefee(parent.BaseFeePerGas, 1)
}

// projectExcessBlobGas implements EIP-4844's excess_blob_gas update rule:
// new_excess = max(0, parent.excess_blob_gas + parent.blob_gas_used - target).
func projectExcessBlobGas(parent *parentBlock) uint64 {
	total := parent.ExcessBlobGas + parent.BlobGasUsed
	if total < targetBlobGasPerBlock {
		return 0
	}
	return total - targetBlobGasPerBlock
}

// decodeCommittedTransactions decodes every constraint entry's raw
// transaction bytes into both go-ethereum's native representation (for
// blob accounting) and the hexutil.Bytes slice an ExecutionPayload wants.
func decodeCommittedTransactions(entries []constraintstore.Entry) ([]*types.Transaction, []hexutil.Bytes, error) {
	var txs []*types.Transaction
	var raw []hexutil.Bytes
	seen := make(map[common.Hash]struct{})
	for _, entry := range entries {
		for _, envelope := range entry.Signed.Message.Transactions {
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(envelope); err != nil {
				return nil, nil, fmt.Errorf("fallbackbuilder: decode committed tx: %w", err)
			}
			if _, dup := seen[tx.Hash()]; dup {
				continue
			}
			seen[tx.Hash()] = struct{}{}
			txs = append(txs, tx)
			raw = append(raw, envelope)
		}
	}
	return txs, raw, nil
}

func totalBlobGasUsed(txs []*types.Transaction) uint64 {
	const gasPerBlob = 131072
	var total uint64
	for _, tx := range txs {
		total += uint64(len(tx.BlobHashes())) * gasPerBlob
	}
	return total
}

func versionedBlobHashes(txs []*types.Transaction) []common.Hash {
	var out []common.Hash
	for _, tx := range txs {
		out = append(out, tx.BlobHashes()...)
	}
	return out
}

func toPayloadWithdrawals(withdrawals []beaconclient.Withdrawal) []*ethtypes.Withdrawal {
	out := make([]*ethtypes.Withdrawal, len(withdrawals))
	for i, w := range withdrawals {
		out[i] = &ethtypes.Withdrawal{
			Index:          hexutil.Uint64(w.Index),
			ValidatorIndex: hexutil.Uint64(w.ValidatorIndex),
			Address:        w.Address,
			AmountGwei:     hexutil.Uint64(w.AmountGwei),
		}
	}
	return out
}

func hexUint64(v uint64) hexutil.Uint64 { return hexutil.Uint64(v) }

func bigFromUint256(v *uint256.Int) *hexutil.Big {
	b := v.ToBig()
	return (*hexutil.Big)(b)
}
