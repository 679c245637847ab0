// Package beaconclient is a thin HTTP client for the parts of the
// consensus-layer Beacon API the gateway depends on: header/epoch
// tracking with bounded retries, proposer duties, the head SSE event
// stream, and the handful of per-slot values the fallback builder needs
// (expected withdrawals, randao, parent beacon block root, genesis time).
package beaconclient

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/log"
)

const (
	timeoutSecs         = 10 * time.Second
	maxRetries          = 5
	retryBackoffInitial = 100 * time.Millisecond
	dutiesMaxRetries    = 5
	dutiesRetryBackoff  = 2 * time.Second
	slotsPerEpoch       = 32
)

// Client is the gateway's beacon-node client.
type Client struct {
	baseURL string
	http    *http.Client
	log     *log.Logger
}

// New builds a Client against a beacon node's REST API root.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeoutSecs},
		log:     log.Module("beaconclient"),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("beaconclient: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("beaconclient: GET %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// withRetries retries fn up to attempts times with a doubling backoff
// starting at initial, matching §4.D's head-header and proposer-duties
// retry policy.
func withRetries(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	backoff := initial
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("beaconclient: exhausted %d retries: %w", attempts, lastErr)
}

// Header is the subset of a beacon block header the gateway reads.
type Header struct {
	Slot      uint64
	Root      common.Hash
	StateRoot common.Hash
}

type headerResponseEnvelope struct {
	Data struct {
		Root   string `json:"root"`
		Header struct {
			Message struct {
				Slot          string `json:"slot"`
				StateRoot     string `json:"state_root"`
				ParentRoot    string `json:"parent_root"`
				BodyRoot      string `json:"body_root"`
				ProposerIndex string `json:"proposer_index"`
			} `json:"message"`
		} `json:"header"`
	} `json:"data"`
}

// HeaderAtSlot fetches GET /eth/v1/beacon/headers/{slot}, retrying up to
// maxRetries times with doubling backoff (§4.D: TIMEOUT_SECS=10,
// MAX_RETRIES=5, RETRY_BACKOFF_MILLIS=100).
func (c *Client) HeaderAtSlot(ctx context.Context, slot uint64) (*Header, error) {
	return c.header(ctx, fmt.Sprintf("%d", slot), maxRetries, retryBackoffInitial)
}

// header fetches GET /eth/v1/beacon/headers/{slotOrTag}, where slotOrTag
// may be a decimal slot number or a tag such as "head".
func (c *Client) header(ctx context.Context, slotOrTag string, attempts int, backoff time.Duration) (*Header, error) {
	var env headerResponseEnvelope
	err := withRetries(ctx, attempts, backoff, func() error {
		ctx, cancel := context.WithTimeout(ctx, timeoutSecs)
		defer cancel()
		return c.getJSON(ctx, "/eth/v1/beacon/headers/"+slotOrTag, &env)
	})
	if err != nil {
		return nil, err
	}
	parsedSlot, err := strconv.ParseUint(env.Data.Header.Message.Slot, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("beaconclient: parse slot: %w", err)
	}
	return &Header{
		Slot:      parsedSlot,
		Root:      common.HexToHash(env.Data.Root),
		StateRoot: common.HexToHash(env.Data.Header.Message.StateRoot),
	}, nil
}

// ProposerDuty pairs a slot with the validator public key scheduled to
// propose it.
type ProposerDuty struct {
	Slot            uint64
	ValidatorPubkey [48]byte
}

type dutiesResponseEnvelope struct {
	Data []struct {
		Pubkey string `json:"pubkey"`
		Slot   string `json:"slot"`
	} `json:"data"`
}

// ProposerDuties fetches GET /eth/v1/validator/duties/proposer/{epoch},
// retrying up to dutiesMaxRetries times with a backoff that starts at
// dutiesRetryBackoff and doubles after each failed attempt.
func (c *Client) ProposerDuties(ctx context.Context, epoch uint64) ([]ProposerDuty, error) {
	var env dutiesResponseEnvelope
	err := withRetries(ctx, dutiesMaxRetries, dutiesRetryBackoff, func() error {
		ctx, cancel := context.WithTimeout(ctx, timeoutSecs)
		defer cancel()
		return c.getJSON(ctx, fmt.Sprintf("/eth/v1/validator/duties/proposer/%d", epoch), &env)
	})
	if err != nil {
		return nil, err
	}
	duties := make([]ProposerDuty, 0, len(env.Data))
	for _, d := range env.Data {
		slot, err := strconv.ParseUint(d.Slot, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("beaconclient: parse duty slot: %w", err)
		}
		var pk [48]byte
		if err := decodeHexFixed(d.Pubkey, pk[:]); err != nil {
			return nil, fmt.Errorf("beaconclient: parse duty pubkey: %w", err)
		}
		duties = append(duties, ProposerDuty{Slot: slot, ValidatorPubkey: pk})
	}
	return duties, nil
}

// SlotToEpoch converts a slot to its containing epoch.
func SlotToEpoch(slot uint64) uint64 { return slot / slotsPerEpoch }

// Withdrawal mirrors the beacon API's expected_withdrawals entry.
type Withdrawal struct {
	Index          uint64
	ValidatorIndex uint64
	Address        common.Address
	AmountGwei     uint64
}

type withdrawalsResponseEnvelope struct {
	Data []struct {
		Index          string `json:"index"`
		ValidatorIndex string `json:"validator_index"`
		Address        string `json:"address"`
		Amount         string `json:"amount"`
	} `json:"data"`
}

// ExpectedWithdrawals fetches GET
// /eth/v1/beacon/states/head/expected_withdrawals (§4.G step 2).
func (c *Client) ExpectedWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	var env withdrawalsResponseEnvelope
	if err := c.getJSON(ctx, "/eth/v1/beacon/states/head/expected_withdrawals", &env); err != nil {
		return nil, err
	}
	out := make([]Withdrawal, 0, len(env.Data))
	for _, w := range env.Data {
		idx, _ := strconv.ParseUint(w.Index, 10, 64)
		vidx, _ := strconv.ParseUint(w.ValidatorIndex, 10, 64)
		amt, _ := strconv.ParseUint(w.Amount, 10, 64)
		out = append(out, Withdrawal{
			Index:          idx,
			ValidatorIndex: vidx,
			Address:        common.HexToAddress(w.Address),
			AmountGwei:     amt,
		})
	}
	return out, nil
}

type randaoResponseEnvelope struct {
	Data struct {
		Randao string `json:"randao"`
	} `json:"data"`
}

// Randao fetches GET /eth/v1/beacon/states/head/randao (§4.G step 3).
func (c *Client) Randao(ctx context.Context) (common.Hash, error) {
	var env randaoResponseEnvelope
	if err := c.getJSON(ctx, "/eth/v1/beacon/states/head/randao", &env); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(env.Data.Randao), nil
}

// HeadHeader fetches the current head's header, for callers (gateway
// startup) that need the head slot itself rather than a specific one.
func (c *Client) HeadHeader(ctx context.Context) (*Header, error) {
	return c.header(ctx, "head", maxRetries, retryBackoffInitial)
}

// HeadBlockRoot fetches the parent beacon block root the fallback builder
// must embed in its payload (§4.G step 4), i.e. the root of the current
// head block.
func (c *Client) HeadBlockRoot(ctx context.Context) (common.Hash, error) {
	hdr, err := c.header(ctx, "head", 1, retryBackoffInitial)
	if err != nil {
		return common.Hash{}, err
	}
	return hdr.Root, nil
}

type genesisResponseEnvelope struct {
	Data struct {
		GenesisTime string `json:"genesis_time"`
	} `json:"data"`
}

// GenesisTime fetches GET /eth/v1/beacon/genesis and returns genesis_time
// as a unix timestamp, used to compute a slot's wall-clock timestamp
// (§4.G step 6: timestamp = genesis_time + slot * slot_time_in_seconds).
func (c *Client) GenesisTime(ctx context.Context) (uint64, error) {
	var env genesisResponseEnvelope
	if err := c.getJSON(ctx, "/eth/v1/beacon/genesis", &env); err != nil {
		return 0, err
	}
	return strconv.ParseUint(env.Data.GenesisTime, 10, 64)
}

// HeadEvent is a single "head" SSE event from the beacon node.
type HeadEvent struct {
	Slot  uint64
	Block common.Hash
}

// StreamHeadEvents subscribes to GET /eth/v1/events?topics=head and
// delivers each event on the returned channel, reconnecting with a fixed
// 1s backoff indefinitely on any stream error (§5: "Beacon head
// subscription: on error, reconnect with 1 s backoff indefinitely").
// The channel is closed when ctx is cancelled.
func (c *Client) StreamHeadEvents(ctx context.Context) <-chan HeadEvent {
	out := make(chan HeadEvent, 16)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.streamOnce(ctx, out); err != nil {
				c.log.Warn("head event stream disconnected", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return out
}

func (c *Client) streamOnce(ctx context.Context, out chan<- HeadEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/eth/v1/events?topics=head", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("beaconclient: event stream status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && dataLine != "":
			var payload struct {
				Slot  string `json:"slot"`
				Block string `json:"block"`
			}
			if err := json.Unmarshal([]byte(dataLine), &payload); err == nil {
				slot, _ := strconv.ParseUint(payload.Slot, 10, 64)
				select {
				case out <- HeadEvent{Slot: slot, Block: common.HexToHash(payload.Block)}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			dataLine = ""
		}
	}
	return scanner.Err()
}

func decodeHexFixed(s string, dst []byte) error {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != len(dst)*2 {
		return fmt.Errorf("wrong length: got %d hex chars, want %d", len(s), len(dst)*2)
	}
	n, err := hex.Decode(dst, []byte(s))
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("short decode: got %d bytes, want %d", n, len(dst))
	}
	return nil
}
