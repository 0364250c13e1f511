package seaport

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// OrderState is the authoritative fill/cancel state reported by the
// settlement contract for one order hash.
type OrderState struct {
	IsValidated bool
	IsCancelled bool
	TotalFilled *big.Int
	TotalSize   *big.Int
}

// Filled reports whether the order has been fully fulfilled on-chain.
func (s OrderState) Filled() bool {
	return s.TotalSize != nil && s.TotalSize.Sign() > 0 &&
		s.TotalFilled != nil && s.TotalFilled.Cmp(s.TotalSize) >= 0
}

// Contract wraps the on-chain settlement contract. The order hash and the
// offerer counter are always recomputed by the contract itself so the
// persisted primary key can never drift from what fulfillment will check.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	caller  bind.ContractCaller

	infoMu      sync.Mutex
	infoVersion string
	infoLoaded  bool
}

// NewContract binds the settlement address over the given backends. The
// transactor may be nil for read-only consumers such as the persistence API.
func NewContract(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse settlement ABI")
	}
	return &Contract{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, caller, transactor, nil),
		caller:  caller,
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// Counter returns the offerer's current invalidation counter.
func (c *Contract) Counter(ctx context.Context, offerer common.Address) (*big.Int, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getCounter", offerer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get counter")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// OrderHash asks the contract for the canonical hash of the components.
func (c *Contract) OrderHash(ctx context.Context, order OrderComponents) (common.Hash, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getOrderHash", order)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get order hash")
	}
	raw := *abi.ConvertType(out[0], new([32]byte)).(*[32]byte)
	return common.BytesToHash(raw[:]), nil
}

func (c *Contract) OrderStatus(ctx context.Context, orderHash common.Hash) (OrderState, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getOrderStatus", [32]byte(orderHash))
	if err != nil {
		return OrderState{}, errors.Wrap(err, "failed to get order status")
	}
	return OrderState{
		IsValidated: *abi.ConvertType(out[0], new(bool)).(*bool),
		IsCancelled: *abi.ConvertType(out[1], new(bool)).(*bool),
		TotalFilled: abi.ConvertType(out[2], new(big.Int)).(*big.Int),
		TotalSize:   abi.ConvertType(out[3], new(big.Int)).(*big.Int),
	}, nil
}

// Version reads the protocol domain version from the deployed contract. The
// value is immutable per deployment, so the first successful read is cached.
func (c *Contract) Version(ctx context.Context) (string, error) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	if c.infoLoaded {
		return c.infoVersion, nil
	}

	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "information")
	if err != nil {
		return "", errors.Wrap(err, "failed to get contract information")
	}
	c.infoVersion = *abi.ConvertType(out[0], new(string)).(*string)
	c.infoLoaded = true
	return c.infoVersion, nil
}

// SimulateFulfill dry-runs fulfillOrder with the exact value the real
// transaction would carry, surfacing protocol validation failures before any
// gas is spent.
func (c *Contract) SimulateFulfill(ctx context.Context, from common.Address, order Order, value *big.Int) error {
	data, err := c.abi.Pack("fulfillOrder", order, [32]byte{})
	if err != nil {
		return errors.Wrap(err, "failed to pack fulfillOrder")
	}
	_, err = c.caller.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.address,
		Value: value,
		Data:  data,
	}, nil)
	return err
}

// Fulfill submits the fulfillment transaction. opts.Value must equal the sum
// of the order's native consideration.
func (c *Contract) Fulfill(opts *bind.TransactOpts, order Order) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "fulfillOrder", order, [32]byte{})
	return tx, errors.Wrap(err, "failed to submit fulfillment")
}

// Cancel invalidates the given orders for their offerer.
func (c *Contract) Cancel(opts *bind.TransactOpts, orders []OrderComponents) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "cancel", orders)
	return tx, errors.Wrap(err, "failed to submit cancellation")
}

// Known revert selectors of the settlement contract, computed from the error
// signatures so no magic constants go stale.
var revertReasons = map[[4]byte]string{
	selector("OrderAlreadyFilled(bytes32)"):                  "order already filled",
	selector("OrderIsCancelled(bytes32)"):                    "order is cancelled",
	selector("OrderPartiallyFilled(bytes32)"):                "order partially filled",
	selector("InvalidTime(uint256,uint256)"):                 "order time window is not active",
	selector("InvalidSigner()"):                              "order signature is invalid",
	selector("InvalidSignature()"):                           "order signature is invalid",
	selector("BadSignatureV(uint8)"):                         "order signature is invalid",
	selector("InvalidCounter()"):                             "order counter is stale",
	selector("InsufficientEtherSupplied()"):                  "insufficient payment value",
	selector("InsufficientNativeTokensSupplied()"):           "insufficient payment value",
	selector("BadFraction()"):                                "malformed order fraction",
	selector("MissingOriginalConsiderationItems()"):          "malformed order consideration",
	selector("UnusedItemParameters()"):                       "malformed order items",
	selector("InvalidNativeOfferItem()"):                     "malformed order items",
	selector("ConsiderationNotMet(uint256,uint256,uint256)"): "order consideration not met",
}

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// RevertReason maps a call/transact error to a human-readable protocol
// reason. ok is false when the error carries no recognizable revert data.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var data []byte
	type dataError interface {
		ErrorData() interface{}
	}
	if de, ok := err.(dataError); ok {
		if s, ok := de.ErrorData().(string); ok {
			if b, decErr := hexutil.Decode(s); decErr == nil {
				data = b
			}
		}
	}

	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if reason, ok := revertReasons[sel]; ok {
			return reason, true
		}
		// Error(string) reverts carry an ABI-encoded message.
		if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
			return reason, true
		}
	}

	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "execution reverted") {
		return strings.TrimSpace(msg), true
	}
	return "", false
}
