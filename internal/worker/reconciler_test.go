package worker

import (
	"context"
	"io"
	"math/big"
	"testing"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	active  []*models.StoredOrder
	listErr error
	updates map[string]models.OrderStatus
}

func (f *fakeStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.StoredOrder, error) {
	return f.active, f.listErr
}

func (f *fakeStore) UpdateStatus(ctx context.Context, orderHash string, status models.OrderStatus) error {
	if f.updates == nil {
		f.updates = map[string]models.OrderStatus{}
	}
	f.updates[orderHash] = status
	return nil
}

type fakeSettlement struct {
	states map[string]seaport.OrderState
	errs   map[string]error
}

func (f *fakeSettlement) OrderStatus(ctx context.Context, orderHash common.Hash) (seaport.OrderState, error) {
	if err := f.errs[orderHash.Hex()]; err != nil {
		return seaport.OrderState{}, err
	}
	return f.states[orderHash.Hex()], nil
}

func testReconciler(st *fakeStore, settlement *fakeSettlement) *Reconciler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Reconciler{
		Store:      st,
		Settlement: settlement,
		Log:        logrus.NewEntry(log),
	}
}

func hash(b byte) string {
	return common.BytesToHash([]byte{b}).Hex()
}

func activeOrder(h string) *models.StoredOrder {
	return &models.StoredOrder{OrderHash: h, Status: models.OrderActive}
}

func TestSweepTransitionsSettledOrders(t *testing.T) {
	filled := hash(1)
	cancelled := hash(2)
	open := hash(3)

	st := &fakeStore{active: []*models.StoredOrder{
		activeOrder(filled), activeOrder(cancelled), activeOrder(open),
	}}
	settlement := &fakeSettlement{states: map[string]seaport.OrderState{
		filled:    {TotalFilled: big.NewInt(1), TotalSize: big.NewInt(1)},
		cancelled: {IsCancelled: true},
		open:      {IsValidated: true},
	}}

	r := testReconciler(st, settlement)
	if err := r.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if st.updates[filled] != models.OrderFulfilled {
		t.Fatalf("filled order: %s", st.updates[filled])
	}
	if st.updates[cancelled] != models.OrderCancelled {
		t.Fatalf("cancelled order: %s", st.updates[cancelled])
	}
	if _, ok := st.updates[open]; ok {
		t.Fatal("still-open order must not be touched")
	}
}

func TestSweepSkipsFailingOrders(t *testing.T) {
	broken := hash(1)
	filled := hash(2)

	st := &fakeStore{active: []*models.StoredOrder{
		activeOrder(broken), activeOrder(filled),
	}}
	settlement := &fakeSettlement{
		states: map[string]seaport.OrderState{
			filled: {TotalFilled: big.NewInt(1), TotalSize: big.NewInt(1)},
		},
		errs: map[string]error{broken: errors.New("rpc timeout")},
	}

	r := testReconciler(st, settlement)
	if err := r.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if st.updates[filled] != models.OrderFulfilled {
		t.Fatal("failure on one order must not block the rest of the sweep")
	}
	if _, ok := st.updates[broken]; ok {
		t.Fatal("order with failed lookup must be left alone")
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	st := &fakeStore{active: []*models.StoredOrder{activeOrder(hash(1))}}
	settlement := &fakeSettlement{states: map[string]seaport.OrderState{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := testReconciler(st, settlement)
	if err := r.SweepOnce(ctx); err == nil {
		t.Fatal("sweep must report the cancelled context")
	}
}
