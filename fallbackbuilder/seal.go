package fallbackbuilder

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
	"github.com/interstate-labs/preconf-gateway/gatewayerr"
)

// hintField names the six ExecutionPayload fields engine_newPayloadV3's
// Geth-style error strings can supply a corrected value for (§4.G step 7).
type hintField string

const (
	hintBlockHash    hintField = "blockhash"
	hintGasUsed      hintField = "gasUsed"
	hintStateRoot    hintField = "stateRoot"
	hintReceiptsRoot hintField = "receiptsRoot"
	hintLogsBloom    hintField = "logsBloom"
	hintBaseFee      hintField = "baseFee"
)

// geth reports invalid-payload mismatches as "local: <field> <a> != got <b>" or
// close variants; hintPattern pulls out the field name and the "got" value.
var hintPattern = regexp.MustCompile(`(?i)(blockhash|gasused|stateroot|receiptsroot|logsbloom|basefee).*?got:?\s*(0x[0-9a-fA-F]+|[0-9a-fA-F]+)`)

// parseHint extracts a (field, gotValue) pair from a Geth validationError
// string, or ok=false if the string matches none of the known fields.
func parseHint(msg string) (hintField, string, bool) {
	m := hintPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	var field hintField
	switch strings.ToLower(m[1]) {
	case "blockhash":
		field = hintBlockHash
	case "gasused":
		field = hintGasUsed
	case "stateroot":
		field = hintStateRoot
	case "receiptsroot":
		field = hintReceiptsRoot
	case "logsbloom":
		field = hintLogsBloom
	case "basefee":
		field = hintBaseFee
	default:
		return "", "", false
	}
	return field, m[2], true
}

func applyHint(payload *ethtypes.ExecutionPayload, field hintField, got string) error {
	switch field {
	case hintBlockHash:
		payload.BlockHash = common.HexToHash(got)
	case hintGasUsed:
		v, err := hexutil.DecodeUint64(normalizeHex(got))
		if err != nil {
			return fmt.Errorf("fallbackbuilder: parse gasUsed hint %q: %w", got, err)
		}
		payload.GasUsed = hexutil.Uint64(v)
	case hintStateRoot:
		payload.StateRoot = common.HexToHash(got)
	case hintReceiptsRoot:
		payload.ReceiptsRoot = common.HexToHash(got)
	case hintLogsBloom:
		b, err := hexutil.Decode(normalizeHex(got))
		if err != nil {
			return fmt.Errorf("fallbackbuilder: parse logsBloom hint %q: %w", got, err)
		}
		payload.LogsBloom = b
	case hintBaseFee:
		v, ok := new(big.Int).SetString(strings.TrimPrefix(got, "0x"), 16)
		if !ok {
			return fmt.Errorf("fallbackbuilder: parse baseFee hint %q", got)
		}
		payload.BaseFeePerGas = (*hexutil.Big)(v)
	}
	return nil
}

func normalizeHex(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

// seal implements §4.G step 7: iteratively submit payload via
// engine_newPayloadV3, applying at most one corrective hint per round,
// until the local client reports VALID or the iteration budget is spent.
func (b *Builder) seal(ctx context.Context, payload *ethtypes.ExecutionPayload, blobHashes []common.Hash, parentBeaconRoot common.Hash) error {
	for i := 0; i < maxSealIterations; i++ {
		status, err := b.exec.NewPayloadV3(ctx, payload, blobHashes, parentBeaconRoot)
		if err != nil {
			return fmt.Errorf("fallbackbuilder: engine_newPayloadV3: %w", err)
		}
		switch status.Status {
		case "VALID":
			if status.LatestValidHash != nil {
				payload.BlockHash = *status.LatestValidHash
			}
			return nil
		case "INVALID", "INVALID_BLOCK_HASH":
			if status.ValidationError == nil {
				return gatewayerr.New(gatewayerr.InvalidEngineHint, "engine_newPayloadV3 rejected payload with no validation error")
			}
			field, got, ok := parseHint(*status.ValidationError)
			if !ok {
				return gatewayerr.Newf(gatewayerr.InvalidEngineHint, "unrecognized engine validation error: %s", *status.ValidationError)
			}
			if err := applyHint(payload, field, got); err != nil {
				return err
			}
		default:
			// SYNCING/ACCEPTED: the local client isn't ready to judge the
			// payload yet; resubmit the same payload as-is on the next
			// iteration, without waiting.
		}
	}
	return gatewayerr.Newf(gatewayerr.EngineBuildExceededIterations, "fallback build did not converge after %d iterations", maxSealIterations)
}
