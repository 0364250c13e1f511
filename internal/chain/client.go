package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Client fans read-only calls out over several RPC endpoints. Each call walks
// the endpoints starting from the preferred one; the preferred endpoint only
// changes after failThreshold consecutive failures, so a single hiccup does
// not abandon an otherwise healthy node. Write traffic is pinned to the
// primary endpoint and never retried here: resubmitting a transaction after
// an ambiguous failure risks a duplicate submission.
//
// Client implements bind.ContractCaller, so a bound contract constructed over
// it gets endpoint failover for every view call.
type Client struct {
	clients       []*ethclient.Client
	endpoints     []string
	callTimeout   time.Duration
	failThreshold int

	mu        sync.Mutex
	preferred int
	failCount int
}

func Dial(endpoints []string, failThreshold int, callTimeout time.Duration) (*Client, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	clients := make([]*ethclient.Client, 0, len(list))
	for _, ep := range list {
		c, err := ethclient.Dial(ep)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to dial %s", ep)
		}
		clients = append(clients, c)
	}
	return &Client{
		clients:       clients,
		endpoints:     list,
		callTimeout:   callTimeout,
		failThreshold: failThreshold,
	}, nil
}

func (c *Client) Close() {
	for _, cl := range c.clients {
		cl.Close()
	}
}

// Primary returns the endpoint used for transactions and receipt polling.
func (c *Client) Primary() *ethclient.Client {
	return c.clients[0]
}

func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.preferred]
}

// CodeAt is part of bind.ContractCaller.
func (c *Client) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.withFailover(ctx, func(ctx context.Context, cl *ethclient.Client) error {
		var err error
		out, err = cl.CodeAt(ctx, contract, blockNumber)
		return err
	})
	return out, err
}

// CallContract is part of bind.ContractCaller.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.withFailover(ctx, func(ctx context.Context, cl *ethclient.Client) error {
		var err error
		out, err = cl.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.withFailover(ctx, func(ctx context.Context, cl *ethclient.Client) error {
		var err error
		out, err = cl.ChainID(ctx)
		return err
	})
	return out, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := c.withFailover(ctx, func(ctx context.Context, cl *ethclient.Client) error {
		var err error
		out, err = cl.BalanceAt(ctx, account, nil)
		return err
	})
	return out, err
}

// WaitMined polls the primary endpoint for the transaction receipt. It does
// not fail over: a lagging secondary could report a mined transaction as
// missing.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.Primary(), tx)
	return receipt, errors.Wrap(err, "failed waiting for receipt")
}

// withFailover runs fn against each endpoint in preference order, bounding
// every attempt with the call timeout. Reverts are terminal answers from the
// chain, not endpoint trouble, so they neither count as failures nor trigger
// a retry elsewhere.
func (c *Client) withFailover(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	start := c.preferredIndex()

	var lastErr error
	for attempt := 0; attempt < len(c.clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := (start + attempt) % len(c.clients)

		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := fn(attemptCtx, c.clients[idx])
		cancel()

		if err == nil {
			c.noteSuccess(idx)
			return nil
		}
		if isRevert(err) {
			c.noteSuccess(idx)
			return err
		}
		lastErr = err
		c.noteFailure(idx)
	}
	return lastErr
}

func (c *Client) preferredIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferred
}

func (c *Client) noteSuccess(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preferred == idx {
		c.failCount = 0
	}
}

// noteFailure advances the preferred endpoint once it has failed
// failThreshold times in a row.
func (c *Client) noteFailure(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preferred != idx {
		return
	}
	c.failCount++
	if c.failCount >= c.failThreshold && len(c.clients) > 1 {
		c.preferred = (c.preferred + 1) % len(c.clients)
		c.failCount = 0
	}
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
