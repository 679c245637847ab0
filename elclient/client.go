// Package elclient talks to the execution layer: a plain JSON-RPC client
// for chain-state reads (eth_*) and a JWT-authenticated client for the
// Engine API (engine_newPayloadV3), used by the execution-state cache and
// the fallback block builder respectively.
package elclient

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

// Config points the client at the execution RPC and Engine API endpoints.
type Config struct {
	ExecutionAPIURL string
	EngineAPIURL    string
	// JWTSecret is the 32-byte shared secret used to authenticate Engine
	// API calls (spec §6: "JWT (64-hex)").
	JWTSecret [32]byte
}

// DefaultConfig returns a zero-value Config; callers must set the URLs and
// JWT secret explicitly.
func DefaultConfig() Config { return Config{} }

// Validate checks the config is minimally usable.
func (c *Config) Validate() error {
	if c.ExecutionAPIURL == "" {
		return fmt.Errorf("elclient: ExecutionAPIURL is required")
	}
	if c.EngineAPIURL == "" {
		return fmt.Errorf("elclient: EngineAPIURL is required")
	}
	return nil
}

// Client is the gateway's execution-layer RPC client.
type Client struct {
	cfg    Config
	exec   *gethrpc.Client
	engine *gethrpc.Client
}

// jwtRoundTripper attaches a freshly signed HS256 bearer token (iat claim,
// per the Engine API authentication spec) to every outgoing request.
type jwtRoundTripper struct {
	secret [32]byte
	base   http.RoundTripper
}

func (rt *jwtRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString(rt.secret[:])
	if err != nil {
		return nil, fmt.Errorf("elclient: sign jwt: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+signed)
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewClient dials both the execution and engine endpoints.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exec, err := gethrpc.DialContext(ctx, cfg.ExecutionAPIURL)
	if err != nil {
		return nil, fmt.Errorf("elclient: dial execution rpc: %w", err)
	}

	engineHTTP := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &jwtRoundTripper{secret: cfg.JWTSecret},
	}
	engine, err := gethrpc.DialHTTPWithClient(cfg.EngineAPIURL, engineHTTP)
	if err != nil {
		return nil, fmt.Errorf("elclient: dial engine api: %w", err)
	}
	return &Client{cfg: cfg, exec: exec, engine: engine}, nil
}

// Close releases both underlying RPC connections.
func (c *Client) Close() {
	c.exec.Close()
	c.engine.Close()
}

// accountBatchResult is populated by BatchGetAccountStates for one address.
type accountBatchResult struct {
	balance hexutil.Big
	nonce   hexutil.Uint64
	code    hexutil.Bytes
}

// BatchGetAccountStates fetches balance, nonce, and code for every address
// in addrs as of blockTag (e.g. "latest") in a single JSON-RPC batch
// (one eth_getBalance/eth_getTransactionCount/eth_getCode per address,
// submitted together via BatchCallContext), matching the "batched eth_*
// fetch" contract of §4.B.
func (c *Client) BatchGetAccountStates(ctx context.Context, addrs []common.Address, blockTag string) (map[common.Address]ethtypes.AccountState, error) {
	if len(addrs) == 0 {
		return map[common.Address]ethtypes.AccountState{}, nil
	}

	results := make([]accountBatchResult, len(addrs))
	batch := make([]gethrpc.BatchElem, 0, len(addrs)*3)
	for i, addr := range addrs {
		batch = append(batch,
			gethrpc.BatchElem{Method: "eth_getBalance", Args: []any{addr, blockTag}, Result: &results[i].balance},
			gethrpc.BatchElem{Method: "eth_getTransactionCount", Args: []any{addr, blockTag}, Result: &results[i].nonce},
			gethrpc.BatchElem{Method: "eth_getCode", Args: []any{addr, blockTag}, Result: &results[i].code},
		)
	}
	if err := c.exec.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("elclient: batch account fetch: %w", err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("elclient: %s failed: %w", elem.Method, elem.Error)
		}
	}

	out := make(map[common.Address]ethtypes.AccountState, len(addrs))
	for i, addr := range addrs {
		bal, overflow := uint256.FromBig((*big.Int)(&results[i].balance))
		if overflow {
			bal = new(uint256.Int).SetAllOne()
		}
		out[addr] = ethtypes.AccountState{
			TransactionCount: uint64(results[i].nonce),
			Balance:          bal,
			HasCode:          len(results[i].code) > 0,
		}
	}
	return out, nil
}

// blockHeaderFields is the minimal subset of eth_getBlockByNumber's result
// the gateway reads.
type blockHeaderFields struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	ExcessBlobGas *hexutil.Uint64 `json:"excessBlobGas"`
	BlobGasUsed   *hexutil.Uint64 `json:"blobGasUsed"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	Transactions  []hexutil.Bytes `json:"transactions"`
}

// LatestBlockHeader fetches eth_getBlockByNumber("latest", false)'s header
// fields, used both for basefee tracking and for the fallback builder's
// parent-block fetch.
func (c *Client) LatestBlockHeader(ctx context.Context) (*blockHeaderFields, error) {
	var out blockHeaderFields
	if err := c.exec.CallContext(ctx, &out, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, fmt.Errorf("elclient: eth_getBlockByNumber: %w", err)
	}
	return &out, nil
}

// Basefee returns the current block's base fee per gas.
func (c *Client) Basefee(ctx context.Context) (*uint256.Int, error) {
	hdr, err := c.LatestBlockHeader(ctx)
	if err != nil {
		return nil, err
	}
	if hdr.BaseFeePerGas == nil {
		return uint256.NewInt(0), nil
	}
	u, overflow := uint256.FromBig((*big.Int)(hdr.BaseFeePerGas))
	if overflow {
		return new(uint256.Int).SetAllOne(), nil
	}
	return u, nil
}

// ExcessBlobGas returns the current block's excess blob gas accumulator
// (0 for blocks produced before EIP-4844 activation).
func (c *Client) ExcessBlobGas(ctx context.Context) (uint64, error) {
	hdr, err := c.LatestBlockHeader(ctx)
	if err != nil {
		return 0, err
	}
	if hdr.ExcessBlobGas == nil {
		return 0, nil
	}
	return uint64(*hdr.ExcessBlobGas), nil
}

// ChainID returns the execution client's configured chain id.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.exec.CallContext(ctx, &result, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("elclient: eth_chainId: %w", err)
	}
	return uint64(result), nil
}

// BlockNumber returns the execution client's current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.exec.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("elclient: eth_blockNumber: %w", err)
	}
	return uint64(result), nil
}

// PayloadStatus is the Engine API's response to engine_newPayloadV3.
type PayloadStatus struct {
	Status          string      `json:"status"`
	LatestValidHash *common.Hash `json:"latestValidHash"`
	ValidationError *string     `json:"validationError"`
}

// NewPayloadV3 submits a candidate execution payload to the local execution
// client via the Engine API, JWT-authenticated.
func (c *Client) NewPayloadV3(ctx context.Context, payload *ethtypes.ExecutionPayload, versionedBlobHashes []common.Hash, parentBeaconBlockRoot common.Hash) (*PayloadStatus, error) {
	var status PayloadStatus
	err := c.engine.CallContext(ctx, &status, "engine_newPayloadV3", payload, versionedBlobHashes, parentBeaconBlockRoot)
	if err != nil {
		return nil, fmt.Errorf("elclient: engine_newPayloadV3: %w", err)
	}
	return &status, nil
}
