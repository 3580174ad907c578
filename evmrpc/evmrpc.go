package evmrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gomultibridge/config"
	"gomultibridge/logger"
	"gomultibridge/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Dialer opens a client for one RPC url, replaced in tests
type Dialer func(ctx context.Context, url string) (Client, error)

// Client is the subset of ethclient.Client used here
type Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Close()
}

func DialEthclient(ctx context.Context, url string) (Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var ErrNoRPC = errors.New("chain has no rpc endpoints")

// WithClient tries f against each rpc of the chain until one succeeds
func WithClient[T any](ctx context.Context, dial Dialer, chain types.Chain, log logger.Logger, f func(client Client) (T, error)) (res T, err error) {
	if len(chain.RPCList) == 0 {
		return res, fmt.Errorf("%s: %w", chain.ID, ErrNoRPC)
	}
	for i, url := range chain.RPCList {
		if i >= config.EVM_RETRIES {
			break
		}
		var client Client
		client, err = dial(ctx, url)
		if err != nil {
			log.Warn("error connecting to rpc", map[string]any{"url": url, "error": err})
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		log.Warn("rpc call failed", map[string]any{"url": url, "chain": chain.ID, "error": err})
	}
	return
}

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

var erc20ABI = mustABI(erc20BalanceOfABI)

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// Reader answers balance and gas price questions for EVM chains
type Reader struct {
	dial Dialer
	log  logger.Logger
}

func NewReader(dial Dialer, log logger.Logger) *Reader {
	if dial == nil {
		dial = DialEthclient
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Reader{dial: dial, log: log}
}

// Balance returns the native balance when token is the chain's native
// token, the ERC20 balance otherwise
func (r *Reader) Balance(ctx context.Context, chain types.Chain, token types.Token, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("invalid evm address %q", owner)
	}
	account := common.HexToAddress(owner)

	if token.ID == chain.NativeToken || token.Contract == "" {
		return WithClient(ctx, r.dial, chain, r.log, func(client Client) (*big.Int, error) {
			return client.BalanceAt(ctx, account, nil)
		})
	}

	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	contract := common.HexToAddress(token.Contract)
	return WithClient(ctx, r.dial, chain, r.log, func(client Client) (*big.Int, error) {
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		if err != nil {
			return nil, err
		}
		values, err := erc20ABI.Unpack("balanceOf", out)
		if err != nil {
			return nil, err
		}
		if len(values) != 1 {
			return nil, errors.New("unexpected balanceOf output")
		}
		balance, ok := values[0].(*big.Int)
		if !ok {
			return nil, errors.New("unexpected balanceOf output type")
		}
		return balance, nil
	})
}

// gas limits for a plain value transfer and a token transfer
const (
	GasLimitNative = 21000
	GasLimitToken  = 65000
)

// TransferCost estimates what sending token on chain costs in native gas,
// mainnet uses the suggested price, others double it like the bridge does
func (r *Reader) TransferCost(ctx context.Context, chain types.Chain, token types.Token) (*big.Int, error) {
	gasPrice, err := WithClient(ctx, r.dial, chain, r.log, func(client Client) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}
	if chain.ChainID != 1 {
		gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(2))
	}
	limit := int64(GasLimitToken)
	if token.ID == chain.NativeToken || token.Contract == "" {
		limit = GasLimitNative
	}
	return new(big.Int).Mul(gasPrice, big.NewInt(limit)), nil
}
