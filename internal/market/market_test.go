package market

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"strings"
	"testing"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	sellerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyerAddr  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	tokenAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	settleAddr = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

type fakeSettlement struct {
	counter     *big.Int
	counterErr  error
	state       seaport.OrderState
	stateErr    error
	version     string
	simulateErr error
	fulfillErr  error
	cancelErr   error
	fulfilled   int
	cancelled   int
	lastValue   *big.Int
}

func (f *fakeSettlement) Address() common.Address { return settleAddr }

func (f *fakeSettlement) Counter(ctx context.Context, offerer common.Address) (*big.Int, error) {
	return f.counter, f.counterErr
}

func (f *fakeSettlement) OrderStatus(ctx context.Context, orderHash common.Hash) (seaport.OrderState, error) {
	return f.state, f.stateErr
}

func (f *fakeSettlement) Version(ctx context.Context) (string, error) {
	if f.version == "" {
		return "1.5", nil
	}
	return f.version, nil
}

func (f *fakeSettlement) SimulateFulfill(ctx context.Context, from common.Address, order seaport.Order, value *big.Int) error {
	return f.simulateErr
}

func (f *fakeSettlement) Fulfill(opts *bind.TransactOpts, order seaport.Order) (*types.Transaction, error) {
	if f.fulfillErr != nil {
		return nil, f.fulfillErr
	}
	f.fulfilled++
	f.lastValue = opts.Value
	return dummyTx(), nil
}

func (f *fakeSettlement) Cancel(opts *bind.TransactOpts, orders []seaport.OrderComponents) (*types.Transaction, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled++
	return dummyTx(), nil
}

type fakeGold struct {
	paused     bool
	owner      common.Address
	minter     bool
	approved   bool
	approveErr error
	approvals  int
	mints      int
}

func (f *fakeGold) Address() common.Address { return tokenAddr }

func (f *fakeGold) Paused(ctx context.Context) (bool, error) {
	return f.paused, nil
}

func (f *fakeGold) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if f.owner == (common.Address{}) {
		return common.Address{}, errors.New("execution reverted: ERC721: invalid token ID")
	}
	return f.owner, nil
}

func (f *fakeGold) HasMinterRole(ctx context.Context, account common.Address) (bool, error) {
	return f.minter, nil
}

func (f *fakeGold) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return f.approved, f.approveErr
}

func (f *fakeGold) SetApprovalForAll(opts *bind.TransactOpts, operator common.Address, approved bool) (*types.Transaction, error) {
	f.approvals++
	return dummyTx(), nil
}

func (f *fakeGold) Mint(opts *bind.TransactOpts, to common.Address, uri string) (*types.Transaction, error) {
	f.mints++
	return dummyTx(), nil
}

type fakeAPI struct {
	created       []seaport.TransportOrder
	createErr     error
	markFulfilled []string
	markCancelled []string
	markErr       error
}

func (f *fakeAPI) CreateOrder(ctx context.Context, params seaport.TransportOrder, signature string) (*models.StoredOrder, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	return &models.StoredOrder{OrderHash: "0xstored", Status: models.OrderActive}, nil
}

func (f *fakeAPI) ActiveOrders(ctx context.Context) ([]*models.StoredOrder, error) {
	return nil, nil
}

func (f *fakeAPI) MarkFulfilled(ctx context.Context, orderHash string) error {
	f.markFulfilled = append(f.markFulfilled, orderHash)
	return f.markErr
}

func (f *fakeAPI) MarkCancelled(ctx context.Context, orderHash string) error {
	f.markCancelled = append(f.markCancelled, orderHash)
	return f.markErr
}

type fakeBalance struct {
	balance *big.Int
	err     error
}

func (f *fakeBalance) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, f.err
}

type fakeWaiter struct {
	status uint64
	err    error
}

func (f *fakeWaiter) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Receipt{Status: f.status, TxHash: tx.Hash()}, nil
}

type fakeSigner struct {
	addr common.Address
	sig  []byte
	err  error
}

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	return f.sig, f.err
}

func dummyTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
}

type fixture struct {
	settlement *fakeSettlement
	gold       *fakeGold
	api        *fakeAPI
	balance    *fakeBalance
	waiter     *fakeWaiter
	market     *Market
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		settlement: &fakeSettlement{counter: big.NewInt(0)},
		gold:       &fakeGold{approved: true, owner: sellerAddr, minter: true},
		api:        &fakeAPI{},
		balance:    &fakeBalance{balance: big.NewInt(1000000)},
		waiter:     &fakeWaiter{status: types.ReceiptStatusSuccessful},
	}
	f.market = New(logrus.NewEntry(log), f.settlement, f.gold, f.api, f.balance, f.waiter, 1)
	return f
}

func sellerSession(signer seaport.Signer) Session {
	return Session{
		Account: sellerAddr,
		Signer:  signer,
		Opts:    &bind.TransactOpts{From: sellerAddr, NoSend: true},
	}
}

func buyerSession() Session {
	return Session{
		Account: buyerAddr,
		Opts:    &bind.TransactOpts{From: buyerAddr, NoSend: true},
	}
}

func storedListing(t *testing.T, price int64) *models.StoredOrder {
	t.Helper()
	components, err := seaport.BuildListing(sellerAddr, tokenAddr, big.NewInt(7), big.NewInt(price), big.NewInt(0))
	if err != nil {
		t.Fatalf("build listing: %v", err)
	}
	raw, err := json.Marshal(seaport.EncodeComponents(components))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &models.StoredOrder{
		OrderHash:  "0x00000000000000000000000000000000000000000000000000000000000000aa",
		Maker:      sellerAddr.Hex(),
		PriceWei:   big.NewInt(price).String(),
		Signature:  "0xdeadbeef",
		Parameters: raw,
		Status:     models.OrderActive,
	}
}

func TestCreateListingHappyPath(t *testing.T) {
	f := newFixture()
	signer := &fakeSigner{addr: sellerAddr, sig: make([]byte, 65)}

	res := f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if !res.Success {
		t.Fatalf("failed: %s", res.Message)
	}
	if res.OrderHash != "0xstored" {
		t.Fatalf("order hash: %s", res.OrderHash)
	}
	if len(f.api.created) != 1 {
		t.Fatalf("persisted %d orders", len(f.api.created))
	}
	if f.gold.approvals != 0 {
		t.Fatal("approval resubmitted despite being granted")
	}

	sent := f.api.created[0]
	if !strings.EqualFold(sent.Offerer, sellerAddr.Hex()) {
		t.Fatalf("offerer: %s", sent.Offerer)
	}
	if !sent.Counter.IsSet() || sent.Counter.Big().Sign() != 0 {
		t.Fatalf("counter: %+v", sent.Counter)
	}
}

func TestCreateListingOwnershipGuards(t *testing.T) {
	f := newFixture()
	f.gold.owner = buyerAddr
	signer := &fakeSigner{addr: sellerAddr, sig: make([]byte, 65)}

	res := f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if res.Success {
		t.Fatal("listing someone else's certificate must fail")
	}
	if res.Message != "you do not own this certificate" {
		t.Fatalf("message: %s", res.Message)
	}

	f = newFixture()
	f.gold.paused = true
	res = f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if res.Success || res.Message != "certificate transfers are paused" {
		t.Fatalf("paused contract: %+v", res)
	}
	if len(f.api.created) != 0 {
		t.Fatal("guarded listing must not persist")
	}
}

func TestMintRequiresMinterRole(t *testing.T) {
	f := newFixture()
	f.gold.minter = false

	res := f.market.Mint(context.Background(), sellerSession(nil), buyerAddr, "ipfs://cert")
	if res.Success {
		t.Fatal("mint without the role must fail")
	}
	if f.gold.mints != 0 {
		t.Fatal("no transaction may be sent without the role")
	}

	f = newFixture()
	res = f.market.Mint(context.Background(), sellerSession(nil), buyerAddr, "ipfs://cert")
	if !res.Success {
		t.Fatalf("mint failed: %s", res.Message)
	}
	if f.gold.mints != 1 {
		t.Fatalf("mints: %d", f.gold.mints)
	}
}

func TestCreateListingSubmitsMissingApproval(t *testing.T) {
	f := newFixture()
	f.gold.approved = false
	signer := &fakeSigner{addr: sellerAddr, sig: make([]byte, 65)}

	res := f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if !res.Success {
		t.Fatalf("failed: %s", res.Message)
	}
	if f.gold.approvals != 1 {
		t.Fatalf("approvals: %d", f.gold.approvals)
	}
}

func TestCreateListingDeclinedSigningPersistsNothing(t *testing.T) {
	f := newFixture()
	signer := &fakeSigner{addr: sellerAddr, err: seaport.ErrSigningDeclined}

	res := f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if res.Success {
		t.Fatal("declined signing must not succeed")
	}
	if res.Message != "listing cancelled" {
		t.Fatalf("message: %s", res.Message)
	}
	if len(f.api.created) != 0 {
		t.Fatal("declined signing must not persist an order")
	}
}

func TestCreateListingPersistFailure(t *testing.T) {
	f := newFixture()
	f.api.createErr = errors.New("order already exists")
	signer := &fakeSigner{addr: sellerAddr, sig: make([]byte, 65)}

	res := f.market.CreateListing(context.Background(), sellerSession(signer), big.NewInt(7), big.NewInt(5000))
	if res.Success {
		t.Fatal("persist failure must not succeed")
	}
	if !strings.Contains(res.Message, "failed to store the listing") {
		t.Fatalf("message: %s", res.Message)
	}
}

func TestBuyHappyPathCarriesExactValue(t *testing.T) {
	f := newFixture()
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if !res.Success {
		t.Fatalf("failed: %s", res.Message)
	}
	if f.settlement.fulfilled != 1 {
		t.Fatalf("fulfillments: %d", f.settlement.fulfilled)
	}
	if f.settlement.lastValue.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("value sent: %s", f.settlement.lastValue)
	}
	if len(f.api.markFulfilled) != 1 || f.api.markFulfilled[0] != stored.OrderHash {
		t.Fatalf("mark-fulfilled calls: %+v", f.api.markFulfilled)
	}
	if res.TxHash == "" {
		t.Fatal("tx hash missing from result")
	}
}

func TestBuyRepairsCancelledListing(t *testing.T) {
	f := newFixture()
	f.settlement.state = seaport.OrderState{IsCancelled: true}
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("cancelled listing must not be buyable")
	}
	if res.Message != "listing was cancelled" {
		t.Fatalf("message: %s", res.Message)
	}
	if len(f.api.markCancelled) != 1 {
		t.Fatalf("mark-cancelled calls: %+v", f.api.markCancelled)
	}
	if f.settlement.fulfilled != 0 {
		t.Fatal("no transaction may be sent for a cancelled listing")
	}
}

func TestBuyRepairsFilledListing(t *testing.T) {
	f := newFixture()
	f.settlement.state = seaport.OrderState{
		TotalFilled: big.NewInt(1),
		TotalSize:   big.NewInt(1),
	}
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("sold listing must not be buyable")
	}
	if res.Message != "listing already sold" {
		t.Fatalf("message: %s", res.Message)
	}
	if len(f.api.markFulfilled) != 1 {
		t.Fatalf("mark-fulfilled calls: %+v", f.api.markFulfilled)
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.balance.balance = big.NewInt(10)
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("underfunded buyer must not proceed")
	}
	if !strings.Contains(res.Message, "insufficient funds") {
		t.Fatalf("message: %s", res.Message)
	}
	if f.settlement.fulfilled != 0 {
		t.Fatal("no transaction may be sent without funds")
	}
}

func TestBuySimulationFailureShortCircuits(t *testing.T) {
	f := newFixture()
	f.settlement.simulateErr = errors.New("execution reverted")
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("failed simulation must not proceed")
	}
	if f.settlement.fulfilled != 0 {
		t.Fatal("no transaction may follow a failed simulation")
	}
}

// revertDataError mimics the rpc error shape that carries ABI-encoded
// revert data alongside the message.
type revertDataError struct{ data string }

func (e revertDataError) Error() string          { return "execution reverted" }
func (e revertDataError) ErrorData() interface{} { return e.data }

func customRevert(signature string) revertDataError {
	payload := append(crypto.Keccak256([]byte(signature))[:4], make([]byte, 32)...)
	return revertDataError{data: hexutil.Encode(payload)}
}

func TestBuyClassifiesAlreadyFilledRevert(t *testing.T) {
	f := newFixture()
	f.settlement.simulateErr = customRevert("OrderAlreadyFilled(bytes32)")
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("filled listing must not be purchasable")
	}
	if res.Message != "listing already sold" {
		t.Fatalf("message = %q", res.Message)
	}
	if len(f.api.markFulfilled) != 1 || f.api.markFulfilled[0] != stored.OrderHash {
		t.Fatalf("expected fulfilled repair for %s, got %v", stored.OrderHash, f.api.markFulfilled)
	}
	if f.settlement.fulfilled != 0 {
		t.Fatal("no transaction may follow a failed simulation")
	}
}

func TestBuyClassifiesCancelledRevert(t *testing.T) {
	f := newFixture()
	f.settlement.simulateErr = customRevert("OrderIsCancelled(bytes32)")
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("cancelled listing must not be purchasable")
	}
	if res.Message != "listing was cancelled" {
		t.Fatalf("message = %q", res.Message)
	}
	if len(f.api.markCancelled) != 1 || f.api.markCancelled[0] != stored.OrderHash {
		t.Fatalf("expected cancelled repair for %s, got %v", stored.OrderHash, f.api.markCancelled)
	}
}

func TestBuyNetworkErrorDuringSimulation(t *testing.T) {
	f := newFixture()
	f.settlement.simulateErr = errors.New("context deadline exceeded")
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("a failed simulation must not proceed")
	}
	if res.Message != "network error while validating the purchase, please try again" {
		t.Fatalf("message = %q", res.Message)
	}
	if len(f.api.markFulfilled) != 0 || len(f.api.markCancelled) != 0 {
		t.Fatal("an rpc outage must not repair the stored status")
	}
	if f.settlement.fulfilled != 0 {
		t.Fatal("no transaction may follow a failed simulation")
	}
}

func TestBuyMalformedParameters(t *testing.T) {
	f := newFixture()
	stored := storedListing(t, 5000)
	stored.Parameters = json.RawMessage(`{"offerer":`)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("malformed listing must not be buyable")
	}
	if !strings.Contains(res.Message, "malformed") {
		t.Fatalf("message: %s", res.Message)
	}
}

func TestBuyRevertedReceipt(t *testing.T) {
	f := newFixture()
	f.waiter.status = types.ReceiptStatusFailed
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if res.Success {
		t.Fatal("reverted fulfillment must not succeed")
	}
	if res.TxHash == "" {
		t.Fatal("result must carry the tx hash for diagnosis")
	}
	if len(f.api.markFulfilled) != 0 {
		t.Fatal("reverted fulfillment must not mark the order")
	}
}

func TestBuySucceedsEvenWhenMarkFails(t *testing.T) {
	f := newFixture()
	f.api.markErr = errors.New("api down")
	stored := storedListing(t, 5000)

	res := f.market.Buy(context.Background(), buyerSession(), stored)
	if !res.Success {
		t.Fatalf("on-chain success must win: %s", res.Message)
	}
}

func TestCancelHappyPath(t *testing.T) {
	f := newFixture()
	stored := storedListing(t, 5000)

	res := f.market.Cancel(context.Background(), sellerSession(nil), stored)
	if !res.Success {
		t.Fatalf("failed: %s", res.Message)
	}
	if f.settlement.cancelled != 1 {
		t.Fatalf("cancellations: %d", f.settlement.cancelled)
	}
	if len(f.api.markCancelled) != 1 || f.api.markCancelled[0] != stored.OrderHash {
		t.Fatalf("mark-cancelled calls: %+v", f.api.markCancelled)
	}
}

func TestCancelRequiresCounter(t *testing.T) {
	f := newFixture()
	stored := storedListing(t, 5000)

	var transport seaport.TransportOrder
	if err := json.Unmarshal(stored.Parameters, &transport); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	transport.Counter = seaport.Uint{}
	raw, err := json.Marshal(transport)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	stored.Parameters = raw

	res := f.market.Cancel(context.Background(), sellerSession(nil), stored)
	if res.Success {
		t.Fatal("cancel without counter must fail")
	}
	if f.settlement.cancelled != 0 {
		t.Fatal("no transaction may be sent without signed components")
	}
}
