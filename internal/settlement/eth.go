package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/domainetf/domainperp/internal/domain"
)

// poolABI is the slice of the perpetual pool contract interface the settler
// needs.
const poolABI = `[{"name":"closePosition","type":"function","stateMutability":"nonpayable","inputs":[{"name":"positionId","type":"uint256"}],"outputs":[]}]`

// ChainSettler closes positions by calling closePosition on the pool
// contract and waiting for the transaction to mine.
type ChainSettler struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	logger   *slog.Logger
}

var _ domain.Settler = (*ChainSettler)(nil)

// NewChainSettler dials rpcURL and binds the pool contract at contractAddr.
// The returned settler signs with key on the chain reported by the node.
func NewChainSettler(ctx context.Context, rpcURL, contractAddr string, key *ecdsa.PrivateKey, logger *slog.Logger) (*ChainSettler, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("settlement: invalid contract address %q", contractAddr)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("settlement: dialing %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("settlement: fetching chain id: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("settlement: building transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("settlement: parsing pool ABI: %w", err)
	}

	return &ChainSettler{
		client:   client,
		contract: bind.NewBoundContract(common.HexToAddress(contractAddr), parsed, client, client, client),
		opts:     opts,
		logger:   logger.With(slog.String("component", "settler.chain")),
	}, nil
}

// Liquidate submits closePosition(positionID) and blocks until the
// transaction mines. A reverted receipt is an error so the scanner keeps
// the record for retry.
func (c *ChainSettler) Liquidate(ctx context.Context, positionID string) error {
	id, ok := new(big.Int).SetString(positionID, 10)
	if !ok {
		return fmt.Errorf("settlement: position id %q is not a contract token id: %w", positionID, domain.ErrSettlement)
	}

	opts := *c.opts
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "closePosition", id)
	if err != nil {
		return fmt.Errorf("settlement: closePosition(%s): %w", positionID, err)
	}

	c.logger.Info("liquidation transaction submitted",
		slog.String("position_id", positionID),
		slog.String("tx", tx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return fmt.Errorf("settlement: waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("settlement: transaction %s reverted: %w", tx.Hash().Hex(), domain.ErrSettlement)
	}

	c.logger.Info("liquidation confirmed",
		slog.String("position_id", positionID),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return nil
}

// Close releases the underlying RPC connection.
func (c *ChainSettler) Close() { c.client.Close() }
