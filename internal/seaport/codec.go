package seaport

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Transport representation of an order: every integer is a decimal string,
// enumerations are plain numbers, so the payload survives any JSON stack
// without floating-point damage. Decoding is deliberately liberal about the
// shapes integers arrive in (decimal strings, numbers, hex strings and the
// {hex:...}/{_hex:...} objects some wallet libraries emit) but a value that
// matches none of them is a hard error, never a silent zero.

var ErrBadUint = errors.New("value is not an unsigned integer")

// Uint is the boundary sum type for unbounded unsigned integers. The zero
// Uint means "absent" and is distinct from an explicit 0.
type Uint struct {
	v *big.Int
}

func NewUint(v *big.Int) Uint {
	if v == nil {
		return Uint{}
	}
	return Uint{v: new(big.Int).Set(v)}
}

func (u Uint) IsSet() bool { return u.v != nil }

// Big returns the decoded value, or nil when the field was absent.
func (u Uint) Big() *big.Int {
	if u.v == nil {
		return nil
	}
	return new(big.Int).Set(u.v)
}

func (u Uint) String() string {
	if u.v == nil {
		return "0"
	}
	return u.v.String()
}

// MarshalJSON keeps absence intact: an unset Uint serializes as null, never
// as a fabricated zero.
func (u Uint) MarshalJSON() ([]byte, error) {
	if u.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(u.String())
}

func (u *Uint) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(ErrBadUint, err.Error())
		}
		return u.setString(s)
	case '{':
		// ethers-style big number objects: {"hex":"0x2a"} / {"_hex":"0x2a"},
		// optionally tagged with {"type":"BigNumber"}.
		var obj struct {
			Hex    string `json:"hex"`
			HexAlt string `json:"_hex"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return errors.Wrap(ErrBadUint, err.Error())
		}
		hex := obj.Hex
		if hex == "" {
			hex = obj.HexAlt
		}
		if hex == "" {
			return errors.Wrap(ErrBadUint, "object carries no hex field")
		}
		return u.setString(hex)
	default:
		// Bare JSON number. Parsed as a string to keep exact value; a
		// fractional or exponent form is rejected rather than truncated.
		return u.setString(string(b))
	}
}

func (u *Uint) setString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.Wrap(ErrBadUint, "empty string")
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return errors.Wrapf(ErrBadUint, "cannot parse %q", s)
	}
	if v.Sign() < 0 {
		return errors.Wrapf(ErrBadUint, "negative value %q", s)
	}
	u.v = v
	return nil
}

// Enum accepts a plain number or a numeric string and marshals as a number.
// Transport fields use *Enum so an absent enum is nil, not a defaulted 0.
type Enum uint8

func (e Enum) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint8(e))
}

func (e *Enum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(ErrBadUint, err.Error())
		}
		b = []byte(s)
	}
	var n uint8
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrapf(ErrBadUint, "bad enum value %s", b)
	}
	*e = Enum(n)
	return nil
}

type TransportOfferItem struct {
	ItemType             *Enum  `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria Uint   `json:"identifierOrCriteria"`
	StartAmount          Uint   `json:"startAmount"`
	EndAmount            Uint   `json:"endAmount"`
}

type TransportConsiderationItem struct {
	ItemType             *Enum  `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria Uint   `json:"identifierOrCriteria"`
	StartAmount          Uint   `json:"startAmount"`
	EndAmount            Uint   `json:"endAmount"`
	Recipient            string `json:"recipient"`
}

// TransportOrder is the wire form of order parameters. Counter rides along so
// the signed components can be reconstructed for cancellation and hashing.
type TransportOrder struct {
	Offerer                         string                       `json:"offerer"`
	Zone                            string                       `json:"zone,omitempty"`
	Offer                           []TransportOfferItem         `json:"offer"`
	Consideration                   []TransportConsiderationItem `json:"consideration"`
	OrderType                       *Enum                        `json:"orderType"`
	StartTime                       Uint                         `json:"startTime"`
	EndTime                         Uint                         `json:"endTime"`
	ZoneHash                        string                       `json:"zoneHash,omitempty"`
	Salt                            Uint                         `json:"salt"`
	ConduitKey                      string                       `json:"conduitKey,omitempty"`
	Counter                         Uint                         `json:"counter,omitempty"`
	TotalOriginalConsiderationItems Uint                         `json:"totalOriginalConsiderationItems,omitempty"`
}

// EncodeComponents renders signed order components into the transport form.
func EncodeComponents(c OrderComponents) TransportOrder {
	out := TransportOrder{
		Offerer:                         c.Offerer.Hex(),
		Zone:                            c.Zone.Hex(),
		OrderType:                       enumPtr(c.OrderType),
		StartTime:                       NewUint(c.StartTime),
		EndTime:                         NewUint(c.EndTime),
		ZoneHash:                        hexutil.Encode(c.ZoneHash[:]),
		Salt:                            NewUint(c.Salt),
		ConduitKey:                      hexutil.Encode(c.ConduitKey[:]),
		Counter:                         NewUint(c.Counter),
		TotalOriginalConsiderationItems: NewUint(big.NewInt(int64(len(c.Consideration)))),
	}
	for _, o := range c.Offer {
		out.Offer = append(out.Offer, TransportOfferItem{
			ItemType:             enumPtr(o.ItemType),
			Token:                o.Token.Hex(),
			IdentifierOrCriteria: NewUint(o.IdentifierOrCriteria),
			StartAmount:          NewUint(o.StartAmount),
			EndAmount:            NewUint(o.EndAmount),
		})
	}
	for _, cons := range c.Consideration {
		out.Consideration = append(out.Consideration, TransportConsiderationItem{
			ItemType:             enumPtr(cons.ItemType),
			Token:                cons.Token.Hex(),
			IdentifierOrCriteria: NewUint(cons.IdentifierOrCriteria),
			StartAmount:          NewUint(cons.StartAmount),
			EndAmount:            NewUint(cons.EndAmount),
			Recipient:            cons.Recipient.Hex(),
		})
	}
	return out
}

// DecodeComponents rebuilds signed order components from the transport form.
// The counter must be present: without it the canonical hash cannot match.
func DecodeComponents(t TransportOrder) (OrderComponents, error) {
	p, err := DecodeParameters(t)
	if err != nil {
		return OrderComponents{}, err
	}
	if !t.Counter.IsSet() {
		return OrderComponents{}, errors.New("missing counter")
	}
	return p.Components(t.Counter.Big()), nil
}

// DecodeParameters rebuilds fulfillment parameters from the transport form.
// Optional protocol fields (zone, zoneHash, conduitKey) default to their
// protocol zero values; everything else missing or malformed is an error.
func DecodeParameters(t TransportOrder) (OrderParameters, error) {
	offerer, err := decodeAddress(t.Offerer, "offerer", true)
	if err != nil {
		return OrderParameters{}, err
	}
	zone, err := decodeAddress(t.Zone, "zone", false)
	if err != nil {
		return OrderParameters{}, err
	}
	if len(t.Offer) == 0 {
		return OrderParameters{}, errors.New("order has no offer items")
	}
	if len(t.Consideration) == 0 {
		return OrderParameters{}, errors.New("order has no consideration items")
	}
	if t.OrderType == nil {
		return OrderParameters{}, errors.New("missing orderType")
	}

	zoneHash, err := decodeHash(t.ZoneHash, "zoneHash")
	if err != nil {
		return OrderParameters{}, err
	}
	conduitKey, err := decodeHash(t.ConduitKey, "conduitKey")
	if err != nil {
		return OrderParameters{}, err
	}
	startTime, err := requireUint(t.StartTime, "startTime")
	if err != nil {
		return OrderParameters{}, err
	}
	endTime, err := requireUint(t.EndTime, "endTime")
	if err != nil {
		return OrderParameters{}, err
	}
	salt, err := requireUint(t.Salt, "salt")
	if err != nil {
		return OrderParameters{}, err
	}

	p := OrderParameters{
		Offerer:    offerer,
		Zone:       zone,
		OrderType:  uint8(*t.OrderType),
		StartTime:  startTime,
		EndTime:    endTime,
		ZoneHash:   zoneHash,
		Salt:       salt,
		ConduitKey: conduitKey,
	}

	for i, o := range t.Offer {
		item, err := decodeOfferItem(o, i)
		if err != nil {
			return OrderParameters{}, err
		}
		p.Offer = append(p.Offer, item)
	}
	for i, c := range t.Consideration {
		item, err := decodeConsiderationItem(c, i)
		if err != nil {
			return OrderParameters{}, err
		}
		p.Consideration = append(p.Consideration, item)
	}

	total := big.NewInt(int64(len(p.Consideration)))
	if t.TotalOriginalConsiderationItems.IsSet() {
		total = t.TotalOriginalConsiderationItems.Big()
	}
	p.TotalOriginalConsiderationItems = total

	if err := p.ValidateEnums(); err != nil {
		return OrderParameters{}, err
	}
	return p, nil
}

func decodeOfferItem(t TransportOfferItem, idx int) (OfferItem, error) {
	if t.ItemType == nil {
		return OfferItem{}, errors.Errorf("offer[%d]: missing itemType", idx)
	}
	token, err := decodeAddress(t.Token, "token", true)
	if err != nil {
		return OfferItem{}, errors.Wrapf(err, "offer[%d]", idx)
	}
	identifier := t.IdentifierOrCriteria.Big()
	if identifier == nil {
		identifier = new(big.Int)
	}
	start, err := requireUint(t.StartAmount, "startAmount")
	if err != nil {
		return OfferItem{}, errors.Wrapf(err, "offer[%d]", idx)
	}
	end, err := requireUint(t.EndAmount, "endAmount")
	if err != nil {
		return OfferItem{}, errors.Wrapf(err, "offer[%d]", idx)
	}
	return OfferItem{
		ItemType:             uint8(*t.ItemType),
		Token:                token,
		IdentifierOrCriteria: identifier,
		StartAmount:          start,
		EndAmount:            end,
	}, nil
}

func decodeConsiderationItem(t TransportConsiderationItem, idx int) (ConsiderationItem, error) {
	if t.ItemType == nil {
		return ConsiderationItem{}, errors.Errorf("consideration[%d]: missing itemType", idx)
	}
	// Native payment items legitimately carry the zero token address.
	token, err := decodeAddress(t.Token, "token", false)
	if err != nil {
		return ConsiderationItem{}, errors.Wrapf(err, "consideration[%d]", idx)
	}
	recipient, err := decodeAddress(t.Recipient, "recipient", true)
	if err != nil {
		return ConsiderationItem{}, errors.Wrapf(err, "consideration[%d]", idx)
	}
	identifier := t.IdentifierOrCriteria.Big()
	if identifier == nil {
		identifier = new(big.Int)
	}
	start, err := requireUint(t.StartAmount, "startAmount")
	if err != nil {
		return ConsiderationItem{}, errors.Wrapf(err, "consideration[%d]", idx)
	}
	end, err := requireUint(t.EndAmount, "endAmount")
	if err != nil {
		return ConsiderationItem{}, errors.Wrapf(err, "consideration[%d]", idx)
	}
	return ConsiderationItem{
		ItemType:             uint8(*t.ItemType),
		Token:                token,
		IdentifierOrCriteria: identifier,
		StartAmount:          start,
		EndAmount:            end,
		Recipient:            recipient,
	}, nil
}

func decodeAddress(s, field string, required bool) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return common.Address{}, errors.Errorf("missing %s address", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("%s is not a valid address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func decodeHash(s, field string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, errors.Wrapf(err, "%s is not valid hex", field)
	}
	if len(b) != 32 {
		return out, errors.Errorf("%s must be 32 bytes, got %d", field, len(b))
	}
	copy(out[:], b)
	return out, nil
}

func requireUint(u Uint, field string) (*big.Int, error) {
	if !u.IsSet() {
		return nil, errors.Errorf("missing %s", field)
	}
	return u.Big(), nil
}

func enumPtr(v uint8) *Enum {
	e := Enum(v)
	return &e
}
