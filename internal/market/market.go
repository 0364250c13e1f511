// Package market coordinates the listing lifecycle: create-listing, buy and
// cancel flows over the settlement contract, the seller's signer and the
// persistence API. The chain is the single source of truth; the store only
// mirrors outcomes that already committed on-chain.
package market

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Settlement is the on-chain protocol surface the flows need.
type Settlement interface {
	Address() common.Address
	Counter(ctx context.Context, offerer common.Address) (*big.Int, error)
	OrderStatus(ctx context.Context, orderHash common.Hash) (seaport.OrderState, error)
	Version(ctx context.Context) (string, error)
	SimulateFulfill(ctx context.Context, from common.Address, order seaport.Order, value *big.Int) error
	Fulfill(opts *bind.TransactOpts, order seaport.Order) (*types.Transaction, error)
	Cancel(opts *bind.TransactOpts, orders []seaport.OrderComponents) (*types.Transaction, error)
}

// GoldToken is the certificate-contract surface the flows need.
type GoldToken interface {
	Address() common.Address
	Paused(ctx context.Context) (bool, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	HasMinterRole(ctx context.Context, account common.Address) (bool, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	SetApprovalForAll(opts *bind.TransactOpts, operator common.Address, approved bool) (*types.Transaction, error)
	Mint(opts *bind.TransactOpts, to common.Address, uri string) (*types.Transaction, error)
}

// OrdersAPI is the persistence API consumed by the flows.
type OrdersAPI interface {
	CreateOrder(ctx context.Context, params seaport.TransportOrder, signature string) (*models.StoredOrder, error)
	ActiveOrders(ctx context.Context) ([]*models.StoredOrder, error)
	MarkFulfilled(ctx context.Context, orderHash string) error
	MarkCancelled(ctx context.Context, orderHash string) error
}

// BalanceReader reports an account's native-currency balance.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Waiter blocks until a submitted transaction is mined.
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Session is the connected account; injected per call so flows can be
// exercised with a mock signer instead of ambient wallet state.
type Session struct {
	Account common.Address
	Signer  seaport.Signer
	Opts    *bind.TransactOpts
}

// NewSession builds a session around a local key.
func NewSession(signer *seaport.KeySigner, chainID *big.Int) (Session, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(signer.Key(), chainID)
	if err != nil {
		return Session{}, errors.Wrap(err, "failed to build transactor")
	}
	return Session{
		Account: signer.Address(),
		Signer:  signer,
		Opts:    opts,
	}, nil
}

// Result is the uniform outcome of every flow. Failures set a human-readable
// message; nothing ever propagates past the orchestrator as a panic or error.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	OrderHash string `json:"orderHash,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
}

type Market struct {
	log        *logrus.Entry
	settlement Settlement
	gold       GoldToken
	api        OrdersAPI
	balance    BalanceReader
	wait       Waiter
	chainID    int64
}

func New(log *logrus.Entry, settlement Settlement, gold GoldToken, api OrdersAPI, balance BalanceReader, wait Waiter, chainID int64) *Market {
	return &Market{
		log:        log,
		settlement: settlement,
		gold:       gold,
		api:        api,
		balance:    balance,
		wait:       wait,
		chainID:    chainID,
	}
}

// CreateListing drives unsigned -> active: fresh counter, signed components,
// persisted row. Any failing step aborts with no partial write; the salt is
// regenerated on every attempt, so a retry always re-signs.
func (m *Market) CreateListing(ctx context.Context, sess Session, tokenID, priceWei *big.Int) Result {
	log := m.flowLog("create_listing")

	paused, err := m.gold.Paused(ctx)
	if err != nil {
		log.WithError(err).Error("pause check failed")
		return Result{Message: "network error while preparing the listing, please try again"}
	}
	if paused {
		return Result{Message: "certificate transfers are paused"}
	}

	owner, err := m.gold.OwnerOf(ctx, tokenID)
	if err != nil {
		log.WithError(err).Warn("owner lookup failed")
		return Result{Message: "certificate does not exist"}
	}
	if owner != sess.Account {
		return Result{Message: "you do not own this certificate"}
	}

	if err := m.ensureApproval(ctx, log, sess); err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{Message: "listing cancelled"}
		}
		log.WithError(err).Error("approval failed")
		return Result{Message: "could not approve the settlement contract, please try again"}
	}

	counter, err := m.settlement.Counter(ctx, sess.Account)
	if err != nil {
		log.WithError(err).Error("counter fetch failed")
		return Result{Message: "network error while preparing the listing, please try again"}
	}

	components, err := seaport.BuildListing(sess.Account, m.gold.Address(), tokenID, priceWei, counter)
	if err != nil {
		return Result{Message: err.Error()}
	}

	version, err := m.settlement.Version(ctx)
	if err != nil {
		log.WithError(err).Error("version fetch failed")
		return Result{Message: "network error while preparing the listing, please try again"}
	}

	typed := seaport.OrderTypedData(components, m.chainID, version, m.settlement.Address())
	signature, err := sess.Signer.SignTypedData(ctx, typed)
	if err != nil {
		if errors.Is(err, seaport.ErrSigningDeclined) {
			log.Info("signing declined")
			return Result{Message: "listing cancelled"}
		}
		log.WithError(err).Error("signing failed")
		return Result{Message: "failed to sign the listing"}
	}

	stored, err := m.api.CreateOrder(ctx, seaport.EncodeComponents(components), hexutil.Encode(signature))
	if err != nil {
		// The signature embeds a one-shot salt: a retry re-signs.
		log.WithError(err).Error("persist failed")
		return Result{Message: "failed to store the listing: " + err.Error()}
	}

	log.WithField("order_hash", stored.OrderHash).Info("listing created")
	return Result{Success: true, OrderHash: stored.OrderHash}
}

// Buy drives active -> fulfilled: defensive decode, read-repair against the
// contract, simulation, then the real fulfillment carrying the exact native
// value the consideration demands.
func (m *Market) Buy(ctx context.Context, sess Session, stored *models.StoredOrder) Result {
	log := m.flowLog("buy").WithField("order_hash", stored.OrderHash)

	params, err := decodeStoredParameters(stored)
	if err != nil {
		log.WithError(err).Warn("malformed listing")
		return Result{Message: "listing is malformed: " + err.Error()}
	}

	orderHash := common.HexToHash(stored.OrderHash)

	// The stored status is only a cache; the contract decides.
	state, err := m.settlement.OrderStatus(ctx, orderHash)
	if err != nil {
		log.WithError(err).Error("status fetch failed")
		return Result{Message: "network error while checking the listing, please try again"}
	}
	if state.IsCancelled {
		m.repair(ctx, log, stored.OrderHash, models.OrderCancelled)
		return Result{Message: "listing was cancelled"}
	}
	if state.Filled() {
		m.repair(ctx, log, stored.OrderHash, models.OrderFulfilled)
		return Result{Message: "listing already sold"}
	}

	value := params.NativeValue()
	balance, err := m.balance.BalanceAt(ctx, sess.Account)
	if err != nil {
		log.WithError(err).Error("balance fetch failed")
		return Result{Message: "network error while checking your balance, please try again"}
	}
	if balance.Cmp(value) < 0 {
		return Result{Message: "insufficient funds: need " + value.String() + " wei"}
	}

	signature, err := hexutil.Decode(stored.Signature)
	if err != nil {
		return Result{Message: "listing is malformed: bad signature encoding"}
	}
	order := seaport.Order{Parameters: params, Signature: signature}

	if err := m.settlement.SimulateFulfill(ctx, sess.Account, order, value); err != nil {
		// Only an actual revert is a verdict on the order; anything else is
		// endpoint trouble and must not read like a bad listing.
		reason, ok := seaport.RevertReason(err)
		if !ok {
			log.WithError(err).Error("simulation failed")
			return Result{Message: "network error while validating the purchase, please try again"}
		}

		msg := "order validation failed: " + reason
		if strings.Contains(reason, "already filled") {
			m.repair(ctx, log, stored.OrderHash, models.OrderFulfilled)
			msg = "listing already sold"
		} else if strings.Contains(reason, "cancelled") {
			m.repair(ctx, log, stored.OrderHash, models.OrderCancelled)
			msg = "listing was cancelled"
		}
		log.WithError(err).Warn("simulation rejected the order")
		return Result{Message: msg}
	}

	opts := *sess.Opts
	opts.Context = ctx
	opts.Value = value
	tx, err := m.settlement.Fulfill(&opts, order)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{Message: "purchase cancelled"}
		}
		log.WithError(err).Error("fulfillment submission failed")
		return Result{Message: m.revertMessage(err, "purchase failed")}
	}

	receipt, err := m.wait.WaitMined(ctx, tx)
	if err != nil {
		log.WithError(err).Error("waiting for fulfillment receipt failed")
		return Result{Message: "could not confirm the purchase transaction", TxHash: tx.Hash().Hex()}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn("fulfillment reverted")
		return Result{Message: "purchase transaction reverted, the listing may already be sold", TxHash: tx.Hash().Hex()}
	}

	// On-chain state is authoritative from here on. A failed status update
	// leaves a stale active row that the reconciler repairs later.
	if err := m.api.MarkFulfilled(ctx, stored.OrderHash); err != nil {
		log.WithError(err).Warn("store update failed after fulfillment, awaiting read-repair")
	}

	log.WithField("tx", tx.Hash().Hex()).Info("purchase complete")
	return Result{Success: true, OrderHash: stored.OrderHash, TxHash: tx.Hash().Hex()}
}

// Cancel drives active -> cancelled via the on-chain cancel call.
func (m *Market) Cancel(ctx context.Context, sess Session, stored *models.StoredOrder) Result {
	log := m.flowLog("cancel").WithField("order_hash", stored.OrderHash)

	components, err := decodeStoredComponents(stored)
	if err != nil {
		log.WithError(err).Warn("malformed listing")
		return Result{Message: "listing is malformed: " + err.Error()}
	}

	opts := *sess.Opts
	opts.Context = ctx
	tx, err := m.settlement.Cancel(&opts, []seaport.OrderComponents{components})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{Message: "cancellation aborted"}
		}
		log.WithError(err).Error("cancel submission failed")
		return Result{Message: m.revertMessage(err, "cancellation failed")}
	}

	receipt, err := m.wait.WaitMined(ctx, tx)
	if err != nil {
		log.WithError(err).Error("waiting for cancel receipt failed")
		return Result{Message: "could not confirm the cancellation transaction", TxHash: tx.Hash().Hex()}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{Message: "cancellation transaction reverted", TxHash: tx.Hash().Hex()}
	}

	if err := m.api.MarkCancelled(ctx, stored.OrderHash); err != nil {
		log.WithError(err).Warn("store update failed after cancellation, awaiting read-repair")
	}

	log.WithField("tx", tx.Hash().Hex()).Info("listing cancelled")
	return Result{Success: true, OrderHash: stored.OrderHash, TxHash: tx.Hash().Hex()}
}

// Mint issues a new certificate. The minter role is checked up front so a
// misconfigured key fails before paying for a doomed transaction.
func (m *Market) Mint(ctx context.Context, sess Session, to common.Address, uri string) Result {
	log := m.flowLog("mint")

	allowed, err := m.gold.HasMinterRole(ctx, sess.Account)
	if err != nil {
		log.WithError(err).Error("role check failed")
		return Result{Message: "network error while checking permissions, please try again"}
	}
	if !allowed {
		return Result{Message: "minting requires the minter role"}
	}

	opts := *sess.Opts
	opts.Context = ctx
	tx, err := m.gold.Mint(&opts, to, uri)
	if err != nil {
		log.WithError(err).Error("mint submission failed")
		return Result{Message: m.revertMessage(err, "minting failed, check your permissions")}
	}

	receipt, err := m.wait.WaitMined(ctx, tx)
	if err != nil {
		return Result{Message: "could not confirm the mint transaction", TxHash: tx.Hash().Hex()}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{Message: "mint transaction reverted", TxHash: tx.Hash().Hex()}
	}

	log.WithField("tx", tx.Hash().Hex()).Info("certificate minted")
	return Result{Success: true, TxHash: tx.Hash().Hex()}
}

// Browse returns the active listings from the persistence API. Rows may be
// momentarily stale; the buy flow re-validates against the contract.
func (m *Market) Browse(ctx context.Context) ([]*models.StoredOrder, error) {
	orders, err := m.api.ActiveOrders(ctx)
	return orders, errors.Wrap(err, "failed to fetch active listings")
}

// EnsureApproval grants the settlement contract transfer rights if missing.
func (m *Market) EnsureApproval(ctx context.Context, sess Session) Result {
	log := m.flowLog("approve")
	if err := m.ensureApproval(ctx, log, sess); err != nil {
		log.WithError(err).Error("approval failed")
		return Result{Message: "could not approve the settlement contract"}
	}
	return Result{Success: true}
}

func (m *Market) ensureApproval(ctx context.Context, log *logrus.Entry, sess Session) error {
	approved, err := m.gold.IsApprovedForAll(ctx, sess.Account, m.settlement.Address())
	if err != nil {
		return errors.Wrap(err, "failed to check approval")
	}
	if approved {
		return nil
	}

	opts := *sess.Opts
	opts.Context = ctx
	tx, err := m.gold.SetApprovalForAll(&opts, m.settlement.Address(), true)
	if err != nil {
		return errors.Wrap(err, "failed to submit approval")
	}
	receipt, err := m.wait.WaitMined(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "failed to confirm approval")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.New("approval transaction reverted")
	}
	log.WithField("tx", tx.Hash().Hex()).Info("settlement contract approved")
	return nil
}

func (m *Market) repair(ctx context.Context, log *logrus.Entry, orderHash string, status models.OrderStatus) {
	var err error
	switch status {
	case models.OrderFulfilled:
		err = m.api.MarkFulfilled(ctx, orderHash)
	case models.OrderCancelled:
		err = m.api.MarkCancelled(ctx, orderHash)
	}
	if err != nil {
		log.WithError(err).Warn("read-repair failed")
		return
	}
	log.WithField("status", status).Info("stale listing repaired")
}

func (m *Market) revertMessage(err error, fallback string) string {
	if reason, ok := seaport.RevertReason(err); ok {
		return fallback + ": " + reason
	}
	return fallback + ", please try again"
}

func (m *Market) flowLog(flow string) *logrus.Entry {
	return m.log.WithFields(logrus.Fields{
		"flow":    flow,
		"flow_id": uuid.NewString(),
	})
}

func decodeStoredParameters(stored *models.StoredOrder) (seaport.OrderParameters, error) {
	var t seaport.TransportOrder
	if err := json.Unmarshal(stored.Parameters, &t); err != nil {
		return seaport.OrderParameters{}, errors.Wrap(err, "bad parameters json")
	}
	return seaport.DecodeParameters(t)
}

func decodeStoredComponents(stored *models.StoredOrder) (seaport.OrderComponents, error) {
	var t seaport.TransportOrder
	if err := json.Unmarshal(stored.Parameters, &t); err != nil {
		return seaport.OrderComponents{}, errors.Wrap(err, "bad parameters json")
	}
	return seaport.DecodeComponents(t)
}
