package http

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"
	"goldmarket/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OrderStore is the persistence surface the handlers need.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.StoredOrder) error
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.StoredOrder, error)
	UpdateStatus(ctx context.Context, orderHash string, status models.OrderStatus) error
}

// Settlement is the slice of the settlement contract the API consumes: the
// stored hash and counter always come from the chain, never from the client.
type Settlement interface {
	Counter(ctx context.Context, offerer common.Address) (*big.Int, error)
	OrderHash(ctx context.Context, order seaport.OrderComponents) (common.Hash, error)
}

type Handler struct {
	Orders     OrderStore
	Settlement Settlement
	Log        *logrus.Entry
}

func NewHandler(orders OrderStore, settlement Settlement, log *logrus.Entry) *Handler {
	return &Handler{Orders: orders, Settlement: settlement, Log: log}
}

type createOrderRequest struct {
	Parameters *seaport.TransportOrder `json:"parameters"`
	Signature  string                  `json:"signature"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Parameters == nil {
		writeError(w, http.StatusBadRequest, "missing parameters")
		return
	}
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "missing signature")
		return
	}
	// A row with an undecodable signature could never be fulfilled.
	if _, err := hexutil.Decode(req.Signature); err != nil {
		writeError(w, http.StatusBadRequest, "signature must be 0x-prefixed hex")
		return
	}

	params, err := seaport.DecodeParameters(*req.Parameters)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	// Hash and counter are recomputed by the settlement contract so the
	// stored row agrees exactly with what fulfillment will verify.
	counter, err := h.Settlement.Counter(ctx, params.Offerer)
	if err != nil {
		h.Log.WithError(err).Error("failed to get counter")
		writeError(w, http.StatusBadGateway, "settlement contract unavailable")
		return
	}
	components := params.Components(counter)

	orderHash, err := h.Settlement.OrderHash(ctx, components)
	if err != nil {
		h.Log.WithError(err).Error("failed to get order hash")
		writeError(w, http.StatusBadGateway, "settlement contract unavailable")
		return
	}

	canonical, err := json.Marshal(seaport.EncodeComponents(components))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode parameters")
		return
	}

	order := &models.StoredOrder{
		OrderHash:     orderHash.Hex(),
		Maker:         params.Offerer.Hex(),
		TokenContract: params.Offer[0].Token.Hex(),
		TokenID:       params.Offer[0].IdentifierOrCriteria.String(),
		PriceWei:      params.NativeValue().String(),
		StartTime:     params.StartTime.String(),
		EndTime:       params.EndTime.String(),
		Counter:       counter.String(),
		Signature:     req.Signature,
		Parameters:    canonical,
		Status:        models.OrderActive,
	}

	if err := h.Orders.InsertOrder(ctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "order already exists")
			return
		}
		h.Log.WithError(err).Error("failed to insert order")
		writeError(w, http.StatusInternalServerError, "failed to store order")
		return
	}

	h.Log.WithFields(logrus.Fields{
		"order_hash": order.OrderHash,
		"maker":      order.Maker,
		"token_id":   order.TokenID,
	}).Info("listing stored")
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.OrderActive
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	orders, err := h.Orders.ListByStatus(r.Context(), status)
	if err != nil {
		h.Log.WithError(err).Error("failed to list orders")
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*models.StoredOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) MarkFulfilled(w http.ResponseWriter, r *http.Request) {
	h.markStatus(w, r, models.OrderFulfilled)
}

func (h *Handler) MarkCancelled(w http.ResponseWriter, r *http.Request) {
	h.markStatus(w, r, models.OrderCancelled)
}

// markStatus mirrors an outcome already committed on-chain into the store.
// Repeating a transition is fine; contradicting a terminal state is not.
func (h *Handler) markStatus(w http.ResponseWriter, r *http.Request, status models.OrderStatus) {
	hash := r.URL.Query().Get("hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing hash")
		return
	}

	err := h.Orders.UpdateStatus(r.Context(), hash, status)
	switch {
	case err == nil:
		h.Log.WithFields(logrus.Fields{"order_hash": hash, "status": status}).Info("order status updated")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown order hash")
	case errors.Is(err, store.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.Log.WithError(err).Error("failed to update order status")
		writeError(w, http.StatusInternalServerError, "failed to update order status")
	}
}
