package ethtypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Withdrawal mirrors the consensus-layer withdrawal object embedded in an
// execution payload.
type Withdrawal struct {
	Index          hexutil.Uint64 `json:"index"`
	ValidatorIndex hexutil.Uint64 `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	AmountGwei     hexutil.Uint64 `json:"amount"`
}

// ExecutionPayload is the Engine API V3 execution payload shape
// (engine_newPayloadV3's first parameter), built by the fallback builder
// from committed transactions and sealed via engine_newPayloadV3.
type ExecutionPayload struct {
	ParentHash    common.Hash     `json:"parentHash"`
	FeeRecipient  common.Address  `json:"feeRecipient"`
	StateRoot     common.Hash     `json:"stateRoot"`
	ReceiptsRoot  common.Hash     `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes   `json:"logsBloom"`
	PrevRandao    common.Hash     `json:"prevRandao"`
	BlockNumber   hexutil.Uint64  `json:"blockNumber"`
	GasLimit      hexutil.Uint64  `json:"gasLimit"`
	GasUsed       hexutil.Uint64  `json:"gasUsed"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	ExtraData     hexutil.Bytes   `json:"extraData"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas"`
	BlockHash     common.Hash     `json:"blockHash"`
	Transactions  []hexutil.Bytes `json:"transactions"`
	Withdrawals   []*Withdrawal   `json:"withdrawals"`
	BlobGasUsed   hexutil.Uint64  `json:"blobGasUsed"`
	ExcessBlobGas hexutil.Uint64  `json:"excessBlobGas"`
}

// DefaultExtraData is the fallback builder's fixed extra-data tag.
var DefaultExtraData = []byte("Self-built with Commit-Boost")

// FieldDiff names a single mismatching field between two execution
// payloads, for FieldMismatch error reporting.
type FieldDiff struct {
	Name     string
	Expected string
	Got      string
}

// Compare returns every field on which local and relay disagree, in the
// fixed order given by §4.F's blinded-blocks comparison.
func (local *ExecutionPayload) Compare(relay *ExecutionPayload) []FieldDiff {
	var diffs []FieldDiff
	cmp := func(name, want, got string) {
		if want != got {
			diffs = append(diffs, FieldDiff{Name: name, Expected: want, Got: got})
		}
	}
	cmp("block_hash", local.BlockHash.Hex(), relay.BlockHash.Hex())
	cmp("parent_hash", local.ParentHash.Hex(), relay.ParentHash.Hex())
	cmp("state_root", local.StateRoot.Hex(), relay.StateRoot.Hex())
	cmp("receipts_root", local.ReceiptsRoot.Hex(), relay.ReceiptsRoot.Hex())
	cmp("logs_bloom", local.LogsBloom.String(), relay.LogsBloom.String())
	cmp("prev_randao", local.PrevRandao.Hex(), relay.PrevRandao.Hex())
	cmp("gas_limit", local.GasLimit.String(), relay.GasLimit.String())
	cmp("gas_used", local.GasUsed.String(), relay.GasUsed.String())
	cmp("timestamp", local.Timestamp.String(), relay.Timestamp.String())
	cmp("extra_data", local.ExtraData.String(), relay.ExtraData.String())
	cmp("base_fee_per_gas", bigString(local.BaseFeePerGas), bigString(relay.BaseFeePerGas))
	cmp("block_number", local.BlockNumber.String(), relay.BlockNumber.String())
	cmp("fee_recipient", local.FeeRecipient.Hex(), relay.FeeRecipient.Hex())
	cmp("blob_gas_used", local.BlobGasUsed.String(), relay.BlobGasUsed.String())
	cmp("excess_blob_gas", local.ExcessBlobGas.String(), relay.ExcessBlobGas.String())
	return diffs
}

func bigString(b *hexutil.Big) string {
	if b == nil {
		return "0"
	}
	return (*big.Int)(b).String()
}
