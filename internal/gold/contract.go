// Package gold wraps the gold-certificate ERC-721 contract. Minting, pause
// and role logic live on-chain; this is only the call surface the
// marketplace needs.
package gold

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const certificateABI = `[
  {"name":"paused","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"name":"hasRole","type":"function","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"name":"totalGoldSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
  {"name":"mintGoldToken","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// MinterRole is the role hash checked before minting certificates.
var MinterRole = crypto.Keccak256Hash([]byte("GOLD_MINTER_ROLE"))

type Contract struct {
	address common.Address
	bound   *bind.BoundContract
}

func NewContract(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(certificateABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse certificate ABI")
	}
	return &Contract{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, caller, transactor, nil),
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) Paused(ctx context.Context) (bool, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "paused")
	if err != nil {
		return false, errors.Wrap(err, "failed to get pause state")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) HasMinterRole(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "hasRole", [32]byte(MinterRole), account)
	if err != nil {
		return false, errors.Wrap(err, "failed to check minter role")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get certificate balance")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to get token owner")
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Contract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", tokenID)
	if err != nil {
		return "", errors.Wrap(err, "failed to get token URI")
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *Contract) TotalSupply(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "totalGoldSupply")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get total supply")
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// IsApprovedForAll reports whether operator may move owner's certificates.
func (c *Contract) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var out []interface{}
	err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, errors.Wrap(err, "failed to check approval")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SetApprovalForAll grants (or revokes) the operator's transfer rights. The
// list flow calls this once per seller before the first listing.
func (c *Contract) SetApprovalForAll(opts *bind.TransactOpts, operator common.Address, approved bool) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "setApprovalForAll", operator, approved)
	return tx, errors.Wrap(err, "failed to set approval")
}

// Mint issues a new certificate to the given owner. Requires the minter role.
func (c *Contract) Mint(opts *bind.TransactOpts, to common.Address, uri string) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "mintGoldToken", to, uri)
	return tx, errors.Wrap(err, "failed to mint certificate")
}
