// marketctl drives the listing lifecycle from the command line: browse and
// list, buy and cancel, plus the owner-side approve and mint helpers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"goldmarket/internal/chain"
	"goldmarket/internal/config"
	"goldmarket/internal/gold"
	"goldmarket/internal/market"
	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const usage = `usage: marketctl <command> [flags]

commands:
  browse                      show active listings
  list    -token N -price WEI create a listing for certificate N
  buy     -hash 0x..          buy the listing with the given order hash
  cancel  -hash 0x..          cancel the listing with the given order hash
  approve                     grant the settlement contract transfer rights
  mint    -to 0x.. -uri URI   mint a new certificate (owner only)
  token   [-id N|-owner 0x..] show certificate details, owner holdings, or supply
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log := logrus.WithField("service", "marketctl")

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	if cfg.Wallet.PrivateKey == "" {
		log.Fatal("wallet private key is not configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rpc, err := chain.Dial(cfg.Chain.RPCEndpoints, cfg.Chain.RPCFailoverThreshold, cfg.RequestTimeout())
	if err != nil {
		log.WithError(err).Fatal("rpc dial failed")
	}
	defer rpc.Close()

	settlement, err := seaport.NewContract(common.HexToAddress(cfg.Chain.SettlementContract), rpc, rpc.Primary())
	if err != nil {
		log.WithError(err).Fatal("settlement contract binding failed")
	}
	goldToken, err := gold.NewContract(common.HexToAddress(cfg.Chain.GoldContract), rpc, rpc.Primary())
	if err != nil {
		log.WithError(err).Fatal("gold contract binding failed")
	}

	signer, err := seaport.NewKeySigner(cfg.Wallet.PrivateKey)
	if err != nil {
		log.WithError(err).Fatal("bad wallet private key")
	}
	sess, err := market.NewSession(signer, big.NewInt(cfg.Chain.ChainID))
	if err != nil {
		log.WithError(err).Fatal("session setup failed")
	}

	api := market.NewAPIClient(cfg.API.BaseURL, cfg.APITimeout())
	m := market.New(log, settlement, goldToken, api, rpc, rpc, cfg.Chain.ChainID)

	switch os.Args[1] {
	case "browse":
		runBrowse(ctx, m)
	case "list":
		runList(ctx, m, sess)
	case "buy":
		runBuy(ctx, m, sess, api)
	case "cancel":
		runCancel(ctx, m, sess, api)
	case "approve":
		emit(m.EnsureApproval(ctx, sess))
	case "mint":
		runMint(ctx, m, sess)
	case "token":
		runToken(ctx, goldToken)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func runBrowse(ctx context.Context, m *market.Market) {
	orders, err := m.Browse(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "browse failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(orders, "", "  ")
	fmt.Println(string(out))
}

func runList(ctx context.Context, m *market.Market, sess market.Session) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	token := fs.String("token", "", "certificate token id")
	price := fs.String("price", "", "price in wei")
	fs.Parse(os.Args[2:])

	tokenID, ok := new(big.Int).SetString(*token, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "-token must be a decimal token id")
		os.Exit(2)
	}
	priceWei, ok := new(big.Int).SetString(*price, 10)
	if !ok || priceWei.Sign() <= 0 {
		fmt.Fprintln(os.Stderr, "-price must be a positive amount in wei")
		os.Exit(2)
	}

	emit(m.CreateListing(ctx, sess, tokenID, priceWei))
}

func runBuy(ctx context.Context, m *market.Market, sess market.Session, api *market.APIClient) {
	stored := lookupOrder(ctx, api, "buy")
	emit(m.Buy(ctx, sess, stored))
}

func runCancel(ctx context.Context, m *market.Market, sess market.Session, api *market.APIClient) {
	stored := lookupOrder(ctx, api, "cancel")
	emit(m.Cancel(ctx, sess, stored))
}

func runMint(ctx context.Context, m *market.Market, sess market.Session) {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	to := fs.String("to", "", "recipient address")
	uri := fs.String("uri", "", "certificate metadata uri")
	fs.Parse(os.Args[2:])

	if !common.IsHexAddress(*to) {
		fmt.Fprintln(os.Stderr, "-to must be a hex address")
		os.Exit(2)
	}
	if *uri == "" {
		fmt.Fprintln(os.Stderr, "-uri is required")
		os.Exit(2)
	}

	emit(m.Mint(ctx, sess, common.HexToAddress(*to), *uri))
}

func runToken(ctx context.Context, goldToken *gold.Contract) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	id := fs.String("id", "", "certificate token id")
	owner := fs.String("owner", "", "holder address")
	fs.Parse(os.Args[2:])

	if *owner != "" {
		if !common.IsHexAddress(*owner) {
			fmt.Fprintln(os.Stderr, "-owner must be a hex address")
			os.Exit(2)
		}
		count, err := goldToken.BalanceOf(ctx, common.HexToAddress(*owner))
		if err != nil {
			fmt.Fprintf(os.Stderr, "balance lookup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("certificates held: %s\n", count)
		return
	}

	if *id == "" {
		supply, err := goldToken.TotalSupply(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "supply lookup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("total certificates: %s\n", supply)
		return
	}

	tokenID, ok := new(big.Int).SetString(*id, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "-id must be a decimal token id")
		os.Exit(2)
	}
	tokenOwner, err := goldToken.OwnerOf(ctx, tokenID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "owner lookup failed: %v\n", err)
		os.Exit(1)
	}
	uri, err := goldToken.TokenURI(ctx, tokenID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uri lookup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token %s\n  owner: %s\n  uri:   %s\n", tokenID, tokenOwner.Hex(), uri)
}

func lookupOrder(ctx context.Context, api *market.APIClient, command string) *models.StoredOrder {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	hash := fs.String("hash", "", "order hash")
	fs.Parse(os.Args[2:])

	if *hash == "" {
		fmt.Fprintln(os.Stderr, "-hash is required")
		os.Exit(2)
	}

	orders, err := api.ActiveOrders(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing lookup failed: %v\n", err)
		os.Exit(1)
	}
	for _, order := range orders {
		if strings.EqualFold(order.OrderHash, *hash) {
			return order
		}
	}
	fmt.Fprintf(os.Stderr, "no active listing with hash %s\n", *hash)
	os.Exit(1)
	return nil
}

func emit(res market.Result) {
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if !res.Success {
		os.Exit(1)
	}
}
