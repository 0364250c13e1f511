package seaport

import (
	"crypto/rand"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Item types of the exchange protocol. Only Native and ERC721 are produced by
// this marketplace, the rest are accepted on decode so foreign orders do not
// blow up before the local guard can reject them.
const (
	ItemTypeNative uint8 = iota
	ItemTypeERC20
	ItemTypeERC721
	ItemTypeERC1155
	ItemTypeERC721WithCriteria
	ItemTypeERC1155WithCriteria
)

const (
	OrderTypeFullOpen uint8 = iota
	OrderTypePartialOpen
	OrderTypeFullRestricted
	OrderTypePartialRestricted
	OrderTypeContract
)

const (
	maxItemType  = ItemTypeERC1155WithCriteria
	maxOrderType = OrderTypeContract
)

// MaxUint256 is used as endTime so listings never expire by time.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Field layouts below mirror the settlement contract ABI tuples exactly, so
// the structs can be packed/unpacked by abi/bind without a conversion layer.

type OfferItem struct {
	ItemType             uint8
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
}

type ConsiderationItem struct {
	ItemType             uint8
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
	Recipient            common.Address
}

// OrderParameters is the fulfillment-side order description.
type OrderParameters struct {
	Offerer                         common.Address
	Zone                            common.Address
	Offer                           []OfferItem
	Consideration                   []ConsiderationItem
	OrderType                       uint8
	StartTime                       *big.Int
	EndTime                         *big.Int
	ZoneHash                        [32]byte
	Salt                            *big.Int
	ConduitKey                      [32]byte
	TotalOriginalConsiderationItems *big.Int
}

// OrderComponents is what gets signed and hashed: OrderParameters with the
// offerer's invalidation counter in place of the consideration count.
type OrderComponents struct {
	Offerer       common.Address
	Zone          common.Address
	Offer         []OfferItem
	Consideration []ConsiderationItem
	OrderType     uint8
	StartTime     *big.Int
	EndTime       *big.Int
	ZoneHash      [32]byte
	Salt          *big.Int
	ConduitKey    [32]byte
	Counter       *big.Int
}

// Order is the unit submitted for fulfillment.
type Order struct {
	Parameters OrderParameters
	Signature  []byte
}

// Components rebinds parameters to a counter for signing or cancellation.
func (p OrderParameters) Components(counter *big.Int) OrderComponents {
	return OrderComponents{
		Offerer:       p.Offerer,
		Zone:          p.Zone,
		Offer:         p.Offer,
		Consideration: p.Consideration,
		OrderType:     p.OrderType,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		ZoneHash:      p.ZoneHash,
		Salt:          p.Salt,
		ConduitKey:    p.ConduitKey,
		Counter:       counter,
	}
}

// Parameters converts signed components back to the fulfillment shape.
func (c OrderComponents) Parameters() OrderParameters {
	return OrderParameters{
		Offerer:                         c.Offerer,
		Zone:                            c.Zone,
		Offer:                           c.Offer,
		Consideration:                   c.Consideration,
		OrderType:                       c.OrderType,
		StartTime:                       c.StartTime,
		EndTime:                         c.EndTime,
		ZoneHash:                        c.ZoneHash,
		Salt:                            c.Salt,
		ConduitKey:                      c.ConduitKey,
		TotalOriginalConsiderationItems: big.NewInt(int64(len(c.Consideration))),
	}
}

// NativeValue sums the native-currency consideration amounts, i.e. the exact
// value a fulfillment transaction must carry.
func (p OrderParameters) NativeValue() *big.Int {
	total := new(big.Int)
	for _, c := range p.Consideration {
		if c.ItemType == ItemTypeNative && c.Token == (common.Address{}) {
			total.Add(total, c.StartAmount)
		}
	}
	return total
}

// ValidateEnums rejects orders whose enumerated fields fall outside the
// protocol-defined ranges before anything is sent to the chain.
func (p OrderParameters) ValidateEnums() error {
	if p.OrderType > maxOrderType {
		return errors.Errorf("undefined order type %d", p.OrderType)
	}
	for i, o := range p.Offer {
		if o.ItemType > maxItemType {
			return errors.Errorf("undefined item type %d in offer[%d]", o.ItemType, i)
		}
	}
	for i, c := range p.Consideration {
		if c.ItemType > maxItemType {
			return errors.Errorf("undefined item type %d in consideration[%d]", c.ItemType, i)
		}
	}
	return nil
}

// BuildListing assembles the canonical one-certificate-for-native-payment
// sell order this marketplace produces: a single ERC721 offer item against a
// single native consideration item paid to the seller, FULL_OPEN, valid
// forever, no zone and no conduit. Salt is freshly random per call, so a
// retry after a failed persist requires a new signature.
func BuildListing(seller, goldToken common.Address, tokenID, priceWei, counter *big.Int) (OrderComponents, error) {
	if tokenID == nil || tokenID.Sign() < 0 {
		return OrderComponents{}, errors.New("token id must be a non-negative integer")
	}
	if priceWei == nil || priceWei.Sign() <= 0 {
		return OrderComponents{}, errors.New("price must be positive")
	}
	if counter == nil {
		return OrderComponents{}, errors.New("counter is required")
	}

	salt, err := randomSalt()
	if err != nil {
		return OrderComponents{}, errors.Wrap(err, "failed to generate salt")
	}

	return OrderComponents{
		Offerer: seller,
		Zone:    common.Address{},
		Offer: []OfferItem{{
			ItemType:             ItemTypeERC721,
			Token:                goldToken,
			IdentifierOrCriteria: new(big.Int).Set(tokenID),
			StartAmount:          big.NewInt(1),
			EndAmount:            big.NewInt(1),
		}},
		Consideration: []ConsiderationItem{{
			ItemType:             ItemTypeNative,
			Token:                common.Address{},
			IdentifierOrCriteria: new(big.Int),
			StartAmount:          new(big.Int).Set(priceWei),
			EndAmount:            new(big.Int).Set(priceWei),
			Recipient:            seller,
		}},
		OrderType:  OrderTypeFullOpen,
		StartTime:  new(big.Int),
		EndTime:    new(big.Int).Set(MaxUint256),
		ZoneHash:   [32]byte{},
		Salt:       salt,
		ConduitKey: [32]byte{},
		Counter:    new(big.Int).Set(counter),
	}, nil
}

func randomSalt() (*big.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf[:]), nil
}
