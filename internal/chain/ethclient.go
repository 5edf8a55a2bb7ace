package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// fundABI covers the ERC-20 read, the fund contract and the investment
// target methods the pipeline calls.
const fundABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"positionOf","stateMutability":"view","inputs":[{"name":"holder","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"invest","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var parsedABI = mustParseABI(fundABI)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse fund ABI: %v", err))
	}
	return a
}

// backend is the part of *ethclient.Client used here.
type backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options configures an EthClient.
type Options struct {
	PrivateKey   string        // hex, optional; without it the client is read-only
	CallTimeout  time.Duration // per read/simulate/send call
	PollInterval time.Duration // receipt polling
}

// EthClient implements Client over go-ethereum's JSON-RPC client.
type EthClient struct {
	backend      backend
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	signer       common.Address
	callTimeout  time.Duration
	pollInterval time.Duration
	close        func()
}

// Dial connects to rpcURL and resolves the chain id.
func Dial(ctx context.Context, rpcURL string, opts Options) (*EthClient, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	c, err := newEthClient(ec, chainID, opts)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.close = ec.Close
	return c, nil
}

// Close releases the RPC connection.
func (c *EthClient) Close() {
	if c.close != nil {
		c.close()
	}
}

// ChainID is the id the client signs for.
func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func newEthClient(b backend, chainID *big.Int, opts Options) (*EthClient, error) {
	c := &EthClient{
		backend:      b,
		chainID:      chainID,
		callTimeout:  opts.CallTimeout,
		pollInterval: opts.PollInterval,
	}
	if c.callTimeout <= 0 {
		c.callTimeout = 30 * time.Second
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 3 * time.Second
	}
	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(opts.PrivateKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
		c.key = key
		c.signer = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Signer returns the address derived from the configured key.
func (c *EthClient) Signer() (common.Address, bool) {
	return c.signer, c.key != nil
}

func (c *EthClient) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.view(ctx, token, "balanceOf", &out, holder); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EthClient) Paused(ctx context.Context, contract common.Address) (bool, error) {
	var out bool
	err := c.view(ctx, contract, "paused", &out)
	return out, err
}

func (c *EthClient) Owner(ctx context.Context, contract common.Address) (common.Address, error) {
	var out common.Address
	err := c.view(ctx, contract, "owner", &out)
	return out, err
}

func (c *EthClient) Token(ctx context.Context, contract common.Address) (common.Address, error) {
	var out common.Address
	err := c.view(ctx, contract, "token", &out)
	return out, err
}

func (c *EthClient) PositionOf(ctx context.Context, target, holder common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.view(ctx, target, "positionOf", &out, holder); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EthClient) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("read code at %s: %w", addr, err)
	}
	return code, nil
}

// view performs an eth_call of a view method and unpacks its single output.
func (c *EthClient) view(ctx context.Context, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", method, to, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("call %s on %s: empty result", method, to)
	}
	if err := parsedABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func (c *EthClient) SimulateInvest(ctx context.Context, fund, target common.Address, amount *big.Int) error {
	msg, err := c.investMsg(fund, target, amount)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return revertOrWrap(err, "simulate invest")
	}
	return nil
}

func (c *EthClient) SendInvest(ctx context.Context, fund, target common.Address, amount *big.Int) (common.Hash, error) {
	msg, err := c.investMsg(fund, target, amount)
	if err != nil {
		return common.Hash{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(ctx, c.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, revertOrWrap(err, "estimate gas")
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &fund,
		Value:     big.NewInt(0),
		Data:      msg.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return signed.Hash(), fmt.Errorf("send tx %s: %w", signed.Hash(), err)
	}
	return signed.Hash(), nil
}

func (c *EthClient) WaitConfirmed(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("tx %s failed in block %s", hash, receipt.BlockNumber)
			}
			return &Receipt{TxHash: hash, BlockNumber: receipt.BlockNumber.Uint64(), GasUsed: receipt.GasUsed}, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("read receipt %s: %w", hash, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for tx %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *EthClient) investMsg(fund, target common.Address, amount *big.Int) (ethereum.CallMsg, error) {
	if c.key == nil {
		return ethereum.CallMsg{}, errors.New("no signer configured")
	}
	data, err := parsedABI.Pack("invest", target, amount)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("pack invest: %w", err)
	}
	return ethereum.CallMsg{From: c.signer, To: &fund, Data: data}, nil
}

// revertOrWrap turns a JSON-RPC revert into *RevertError.
func revertOrWrap(err error, op string) error {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				return DecodeRevert(data, de.Error())
			}
		}
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return DecodeRevert(nil, err.Error())
	}
	return fmt.Errorf("%s: %w", op, err)
}
