// Package preflight implements the execution-layer transaction validator
// (§4.C): nine ordered checks deciding whether a set of transactions could
// possibly land in a given future slot given the gateway's current
// projected view of chain state.
package preflight

import (
	"context"
	"fmt"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/execstate"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
)

// SlotView is what the preflight validator needs to know about already
// committed work for a slot, supplied by the commitment-state component.
type SlotView interface {
	CommittedCount(slot uint64) int
	CommittedGas(slot uint64) uint64
	BlobCount(slot uint64) int
}

// SenderView answers the per-sender diff-reconciliation walk of check 8:
// the accumulated (Δnonce, Δbalance) across every current block template
// for a sender, plus the highest slot any of those templates target.
type SenderView interface {
	SenderDiff(sender common.Address) (diff execstate.SenderDiff, highestSlot uint64, ok bool)
}

// Validator runs the §4.C checks against a live execution-state snapshot.
type Validator struct {
	state   *execstate.State
	limits  Limits
	chainID uint64
	// BlockGasLimit is the execution block's configured gas limit,
	// snapshotted at construction per §4.B's "new(client, limits,
	// block_gas_limit)".
	BlockGasLimit uint64

	// kzgCtx holds the trusted KZG setup used to verify blob sidecar
	// commitments/proofs (check 9). Built once at construction: loading
	// the ceremony SRS takes seconds, far too slow to repeat per request.
	kzgCtx *goethkzg.Context
}

// New builds a Validator, loading the trusted KZG setup used for EIP-4844
// blob verification.
func New(state *execstate.State, limits Limits, chainID, blockGasLimit uint64) (*Validator, error) {
	kzgCtx, err := goethkzg.NewContext4096Secure()
	if err != nil {
		return nil, fmt.Errorf("preflight: load kzg trusted setup: %w", err)
	}
	return &Validator{state: state, limits: limits, chainID: chainID, BlockGasLimit: blockGasLimit, kzgCtx: kzgCtx}, nil
}

// Validate runs every check in order against txs targeting slot, given the
// gateway's current latestSlot and the committed/sender state supplied by
// slots and senders. It fails fast on the first violated check.
func (v *Validator) Validate(ctx context.Context, slot, latestSlot uint64, txs []*ethtypes.Transaction, slots SlotView, senders SenderView) error {
	// 1. chain-id
	for _, tx := range txs {
		if cid := tx.ChainID(); cid != nil && cid.Uint64() != v.chainID {
			return gatewayerr.New(gatewayerr.InvalidChainId, "transaction chain id does not match gateway chain")
		}
	}

	// 2. per-slot commitment count
	if slots.CommittedCount(slot)+len(txs) > v.limits.MaxCommitmentsInBlock {
		return gatewayerr.New(gatewayerr.MaxCommitmentsExceeded, "per-slot commitment count exceeded")
	}

	// 3. per-slot gas cap
	var gasSum uint64
	for _, tx := range txs {
		gasSum += tx.GasLimit()
	}
	if slots.CommittedGas(slot)+gasSum > v.limits.MaxCommitmentGasPerSlot {
		return gatewayerr.New(gatewayerr.MaxGasExceeded, "per-slot gas cap exceeded")
	}

	// 4. per-tx size/init-code/gas-limit/fee-cap checks
	for _, tx := range txs {
		if tx.Size() > v.limits.MaxTxInputBytes {
			return gatewayerr.New(gatewayerr.TransactionSizeTooHigh, "transaction exceeds max input size")
		}
		if tx.IsCreate() && tx.InputSize() > v.limits.MaxInitCodeByteSize {
			return gatewayerr.New(gatewayerr.TransactionSizeTooHigh, "init-code exceeds max size")
		}
		if tx.GasLimit() > v.BlockGasLimit {
			return gatewayerr.New(gatewayerr.GasLimitTooHigh, "gas limit exceeds block gas limit")
		}
		if tx.MaxPriorityFeePerGas().Cmp(tx.MaxFeePerGas()) > 0 {
			return gatewayerr.New(gatewayerr.MaxPriorityFeePerGasTooHigh, "max priority fee exceeds max fee")
		}
	}

	// 7. target slot must be in the future (checked before the basefee
	// projection uses slot_diff, so slot_diff never underflows).
	if slot <= latestSlot {
		return gatewayerr.New(gatewayerr.InvalidSlot, "target slot is not after latest slot")
	}
	slotDiff := slot - latestSlot

	// 5. basefee projection
	maxBasefee := ProjectBasefee(v.state.Basefee(), slotDiff)
	for _, tx := range txs {
		if tx.MaxFeePerGas().Cmp(maxBasefee) < 0 {
			return gatewayerr.NewBaseFeeTooLow(maxBasefee.String())
		}
	}

	// 6. inclusion pricing. remaining is the slot-level snapshot taken
	// once before the loop, per spec: the per-tx floor must not rise
	// within a single bundle, so every tx in txs is priced against the
	// same remaining capacity, not a running total decremented per tx.
	committedGas := slots.CommittedGas(slot)
	remaining := v.BlockGasLimit - committedGas
	for _, tx := range txs {
		gasLimit := tx.GasLimit()
		floor := MinInclusionPriorityFeeWei(remaining, gasLimit, v.limits.MinInclusionProfitWei)
		tip := tx.EffectiveTipPerGas(maxBasefee)
		if tip.Cmp(uint256.NewInt(floor)) < 0 {
			return gatewayerr.NewMaxPriorityFeeTooLow(tip.String(), uint256.NewInt(floor).String())
		}
	}

	// 8. per-sender diff reconciliation
	intraBundle := make(map[common.Address]execstate.SenderDiff)
	for _, tx := range txs {
		diff, highestSlot, ok := senders.SenderDiff(tx.Sender)
		if ok && slot < highestSlot {
			return gatewayerr.New(gatewayerr.NonceTooLow, "cannot interleave before an earlier commitment for this sender")
		}

		acct, err := v.state.AccountState(ctx, tx.Sender)
		if err != nil {
			return err
		}

		effectiveNonce := acct.TransactionCount
		effectiveBalance := acct.Balance.Clone()
		if ok {
			effectiveNonce += diff.DeltaNonce
			if diff.DeltaBalance != nil {
				effectiveBalance = subSaturating(effectiveBalance, diff.DeltaBalance)
			}
		}
		if intra, seen := intraBundle[tx.Sender]; seen {
			effectiveNonce += intra.DeltaNonce
			effectiveBalance = subSaturating(effectiveBalance, intra.DeltaBalance)
		}

		if tx.Inner.Nonce() != effectiveNonce {
			if tx.Inner.Nonce() < effectiveNonce {
				return gatewayerr.New(gatewayerr.NonceTooLow, "transaction nonce below expected account nonce")
			}
			return gatewayerr.New(gatewayerr.NonceTooHigh, "transaction nonce above expected account nonce")
		}
		if tx.MaxCost().Cmp(effectiveBalance) > 0 {
			return gatewayerr.New(gatewayerr.InsufficientBalance, "transaction cost exceeds effective balance")
		}
		if acct.HasCode {
			return gatewayerr.New(gatewayerr.AccountHasCode, "sender account has code")
		}

		prev := intraBundle[tx.Sender]
		intraBundle[tx.Sender] = execstate.SenderDiff{
			DeltaNonce:   prev.DeltaNonce + 1,
			DeltaBalance: addSaturating(prev.DeltaBalance, tx.MaxCost()),
		}
	}

	// 9. EIP-4844
	blobBasefee := ProjectBasefee(v.state.BlobBasefee(), slotDiff)
	blobCount := slots.BlobCount(slot)
	for _, tx := range txs {
		if !tx.IsBlobTx() {
			continue
		}
		blobCount += len(tx.BlobHashes())
		if blobCount > v.limits.MaxBlobsPerBlock {
			return gatewayerr.New(gatewayerr.MaxBlobCountExceeded, "slot blob count exceeds maximum")
		}
		if tx.MaxFeePerBlobGas().Cmp(blobBasefee) < 0 {
			return gatewayerr.NewBlobBaseFeeTooLow(blobBasefee.String())
		}
		if err := v.verifyBlobSidecar(tx); err != nil {
			return err
		}
	}

	return nil
}

// verifyBlobSidecar checks tx's blob commitments and proofs against the
// trusted KZG setup (check 9; the original calls
// transaction.validate_blob(self.kzg_settings.get())). The sidecar travels
// with the decoded network-form envelope, so no extra wire plumbing is
// needed to reach it.
func (v *Validator) verifyBlobSidecar(tx *ethtypes.Transaction) error {
	sidecar := tx.Inner.BlobTxSidecar()
	if sidecar == nil {
		return gatewayerr.New(gatewayerr.Eip4844Limit, "blob transaction missing sidecar")
	}
	n := len(sidecar.Blobs)
	if n != len(sidecar.Commitments) || n != len(sidecar.Proofs) || n != len(tx.BlobHashes()) {
		return gatewayerr.New(gatewayerr.Eip4844Limit, "blob sidecar field count mismatch")
	}

	blobs := make([]*goethkzg.Blob, n)
	commitments := make([]goethkzg.KZGCommitment, n)
	proofs := make([]goethkzg.KZGProof, n)
	for i := range sidecar.Blobs {
		blobs[i] = (*goethkzg.Blob)(&sidecar.Blobs[i])
		commitments[i] = goethkzg.KZGCommitment(sidecar.Commitments[i])
		proofs[i] = goethkzg.KZGProof(sidecar.Proofs[i])
	}
	if err := v.kzgCtx.VerifyBlobKZGProofBatch(blobs, commitments, proofs); err != nil {
		return gatewayerr.New(gatewayerr.Eip4844Limit, fmt.Sprintf("blob kzg proof verification failed: %v", err))
	}
	return nil
}

func subSaturating(a, b *uint256.Int) *uint256.Int {
	if b == nil {
		return a
	}
	if a.Cmp(b) < 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(a, b)
}

func addSaturating(a, b *uint256.Int) *uint256.Int {
	if a == nil {
		a = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}
