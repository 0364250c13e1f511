package seaport

import (
	"context"
	"crypto/ecdsa"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// ProtocolName is the EIP-712 domain name of the settlement contract. The
// domain version is read from the deployed contract, never hardcoded.
const ProtocolName = "Seaport"

// ErrSigningDeclined is returned by a Signer when the key holder refuses to
// authorize the payload. Flows treat it as a clean cancellation.
var ErrSigningDeclined = errors.New("signing declined")

// Signer produces detached EIP-712 signatures. It stands in for the seller's
// wallet so flows can be exercised with a mock.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// OrderTypedData builds the structured payload the seller signs: the protocol
// domain plus the full OrderComponents type schema.
func OrderTypedData(c OrderComponents, chainID int64, version string, verifyingContract common.Address) apitypes.TypedData {
	offer := make([]interface{}, 0, len(c.Offer))
	for _, o := range c.Offer {
		offer = append(offer, map[string]interface{}{
			"itemType":             strconv.Itoa(int(o.ItemType)),
			"token":                strings.ToLower(o.Token.Hex()),
			"identifierOrCriteria": o.IdentifierOrCriteria.String(),
			"startAmount":          o.StartAmount.String(),
			"endAmount":            o.EndAmount.String(),
		})
	}
	consideration := make([]interface{}, 0, len(c.Consideration))
	for _, cons := range c.Consideration {
		consideration = append(consideration, map[string]interface{}{
			"itemType":             strconv.Itoa(int(cons.ItemType)),
			"token":                strings.ToLower(cons.Token.Hex()),
			"identifierOrCriteria": cons.IdentifierOrCriteria.String(),
			"startAmount":          cons.StartAmount.String(),
			"endAmount":            cons.EndAmount.String(),
			"recipient":            strings.ToLower(cons.Recipient.Hex()),
		})
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"OrderComponents": []apitypes.Type{
				{Name: "offerer", Type: "address"},
				{Name: "zone", Type: "address"},
				{Name: "offer", Type: "OfferItem[]"},
				{Name: "consideration", Type: "ConsiderationItem[]"},
				{Name: "orderType", Type: "uint8"},
				{Name: "startTime", Type: "uint256"},
				{Name: "endTime", Type: "uint256"},
				{Name: "zoneHash", Type: "bytes32"},
				{Name: "salt", Type: "uint256"},
				{Name: "conduitKey", Type: "bytes32"},
				{Name: "counter", Type: "uint256"},
			},
			"OfferItem": []apitypes.Type{
				{Name: "itemType", Type: "uint8"},
				{Name: "token", Type: "address"},
				{Name: "identifierOrCriteria", Type: "uint256"},
				{Name: "startAmount", Type: "uint256"},
				{Name: "endAmount", Type: "uint256"},
			},
			"ConsiderationItem": []apitypes.Type{
				{Name: "itemType", Type: "uint8"},
				{Name: "token", Type: "address"},
				{Name: "identifierOrCriteria", Type: "uint256"},
				{Name: "startAmount", Type: "uint256"},
				{Name: "endAmount", Type: "uint256"},
				{Name: "recipient", Type: "address"},
			},
		},
		PrimaryType: "OrderComponents",
		Domain: apitypes.TypedDataDomain{
			Name:              ProtocolName,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: strings.ToLower(verifyingContract.Hex()),
		},
		Message: apitypes.TypedDataMessage{
			"offerer":       strings.ToLower(c.Offerer.Hex()),
			"zone":          strings.ToLower(c.Zone.Hex()),
			"offer":         offer,
			"consideration": consideration,
			"orderType":     strconv.Itoa(int(c.OrderType)),
			"startTime":     c.StartTime.String(),
			"endTime":       c.EndTime.String(),
			"zoneHash":      c.ZoneHash[:],
			"salt":          c.Salt.String(),
			"conduitKey":    c.ConduitKey[:],
			"counter":       c.Counter.String(),
		},
	}
}

// TypedDataDigest computes keccak256("\x19\x01" || domainSeparator || structHash).
func TypedDataDigest(data apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash domain")
	}
	structHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash message")
	}

	raw := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256Hash(raw), nil
}

// KeySigner signs with a plain secp256k1 key held in memory.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return &KeySigner{key: key}, nil
}

func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *KeySigner) Key() *ecdsa.PrivateKey {
	return s.key
}

func (s *KeySigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrSigningDeclined
	}

	digest, err := TypedDataDigest(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}
	sig[64] += 27
	return sig, nil
}
