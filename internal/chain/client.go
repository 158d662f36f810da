package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"threatScope/internal/model"
)

// Client wraps go-ethereum RPC and converts blocks into the detection model.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	logger    *zap.Logger

	mu     sync.Mutex
	signer types.Signer
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, logger *zap.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		logger:    logger,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockByNumber fetches a block with full transactions and normalizes it.
// Transactions whose sender cannot be recovered are skipped.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	signer, err := c.loadSigner(ctx)
	if err != nil {
		return model.Block{}, err
	}

	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return model.Block{}, err
	}

	out, skipped := buildBlock(block, signer)
	for _, failure := range skipped {
		c.logger.Warn("skip transaction",
			zap.Uint64("block_number", number),
			zap.String("tx_hash", failure.TxHash),
			zap.Error(failure.Err),
		)
	}
	return out, nil
}

func (c *Client) loadSigner(ctx context.Context) (types.Signer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.signer != nil {
		return c.signer, nil
	}

	chainID, err := c.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	c.signer = types.LatestSignerForChainID(chainID)
	return c.signer, nil
}
