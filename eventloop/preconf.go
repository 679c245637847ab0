package eventloop

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/blssign"
	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
	"github.com/interstate-labs/preconf-gateway/rpcapi"
)

// handlePreconf implements §4.I's preconfirmation-request branch: validate
// under the commitment/execution state, resolve which locally-controlled
// keys may sign for the slot's proposer, sign one constraints message per
// transaction per delegatee, commit to the block template, and reply.
func (l *Loop) handlePreconf(ctx context.Context, job rpcapi.Job) {
	req := job.Request

	if err := l.commitment.ValidateRequestWindow(req.Slot); err != nil {
		l.reject(job, err)
		return
	}

	latestSlot := l.commitment.LatestSlot()
	if err := l.validator.Validate(ctx, req.Slot, latestSlot, req.Txs, l.commitment, l.commitment); err != nil {
		l.reject(job, err)
		return
	}

	proposer, err := l.commitment.ProposerPubkeyForSlot(req.Slot)
	if err != nil {
		l.reject(job, err)
		return
	}

	delegatees := l.localDelegateesFor(proposer)
	if len(delegatees) == 0 {
		l.reject(job, gatewayerr.New(gatewayerr.NoValidatorInSlot, "no locally-controlled key delegated for this slot's proposer"))
		return
	}

	observedNonces, err := l.observedNonces(ctx, req.Txs)
	if err != nil {
		l.reject(job, err)
		return
	}

	var signed []ethtypes.SignedConstraints
	for _, delegatee := range delegatees {
		for _, tx := range req.Txs {
			msg := ethtypes.ConstraintsMessage{
				Pubkey:       delegatee,
				Slot:         req.Slot,
				Transactions: [][]byte{tx.Raw},
			}
			sc, err := blssign.SignConstraints(ctx, l.signer, delegatee, msg, l.chain)
			if err != nil {
				l.reject(job, gatewayerr.New(gatewayerr.InvalidSignature, err.Error()))
				return
			}
			signed = append(signed, sc)
			l.commitment.AddConstraint(req.Slot, sc, []*ethtypes.Transaction{tx}, observedNonces)
			l.metrics.RecordPreconfirmedTx(tx.Type())
		}
	}

	job.Reply <- rpcapi.Reply{SignedConstraints: signed}
}

// localDelegateesFor intersects every delegatee the relay knows validator
// authorized (including validator itself) against the pubkeys this gateway
// instance holds signing key material for.
func (l *Loop) localDelegateesFor(validator [48]byte) []blssign.PublicKey {
	var out []blssign.PublicKey
	for _, pk := range l.delegations.DelegateesFor(validator) {
		if _, ok := l.localPubkeys[pk]; ok {
			out = append(out, pk)
		}
	}
	return out
}

// observedNonces fetches each distinct sender's current on-chain
// transaction count, the baseline commitment.Block.addConstraint needs
// when first tracking a sender's diff for a slot.
func (l *Loop) observedNonces(ctx context.Context, txs []*ethtypes.Transaction) (map[common.Address]uint64, error) {
	out := make(map[common.Address]uint64)
	for _, tx := range txs {
		if _, ok := out[tx.Sender]; ok {
			continue
		}
		acct, err := l.exec.AccountState(ctx, tx.Sender)
		if err != nil {
			return nil, err
		}
		out[tx.Sender] = acct.TransactionCount
	}
	return out, nil
}

func (l *Loop) reject(job rpcapi.Job, err error) {
	l.metrics.RecordValidationError(errKindTag(err))
	job.Reply <- rpcapi.Reply{Err: err}
}

func errKindTag(err error) string {
	if gerr, ok := err.(*gatewayerr.Error); ok {
		return string(gerr.Kind)
	}
	return string(gatewayerr.Internal)
}
