package worker

import (
	"context"
	"time"

	"goldmarket/internal/store"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

var (
	orderFulfilledTopic = crypto.Keccak256Hash([]byte(
		"OrderFulfilled(bytes32,address,address,address,(uint8,address,uint256,uint256)[],(uint8,address,uint256,uint256,address)[])",
	))
	orderCancelledTopic = crypto.Keccak256Hash([]byte(
		"OrderCancelled(bytes32,address,address)",
	))
)

// runEvents tails settlement events over a websocket subscription and
// reconciles the named order immediately. The subscription is best effort,
// reconnecting with a flat backoff; the ticker sweep covers anything missed
// while disconnected.
func (r *Reconciler) runEvents(ctx context.Context) {
	if r.WSEndpoint == "" {
		r.Log.Info("event subscription disabled: ws endpoint is empty")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.subscribeOnce(ctx); err != nil && ctx.Err() == nil {
			r.Log.WithError(err).Warn("event subscription dropped")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (r *Reconciler) subscribeOnce(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, r.WSEndpoint)
	if err != nil {
		return err
	}
	defer client.Close()

	logs := make(chan types.Log, 16)
	sub, err := client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{r.Contract},
		Topics:    [][]common.Hash{{orderFulfilledTopic, orderCancelledTopic}},
	}, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	r.Log.WithField("endpoint", r.WSEndpoint).Info("event subscription established")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case entry := <-logs:
			r.handleLog(ctx, entry)
		}
	}
}

// handleLog extracts the order hash from a settlement event. Both events
// carry the hash as the first non-indexed word of the data blob.
func (r *Reconciler) handleLog(ctx context.Context, entry types.Log) {
	if len(entry.Data) < 32 {
		r.Log.WithField("tx", entry.TxHash.Hex()).Warn("settlement event with short data")
		return
	}
	orderHash := common.BytesToHash(entry.Data[:32])
	err := r.reconcileOrder(ctx, orderHash.Hex())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.Log.WithError(err).WithField("order_hash", orderHash.Hex()).Warn("event reconcile failed")
	}
}
