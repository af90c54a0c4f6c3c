// Package tokens implements the fungible-token capability the bridge talks to.
//
// A token is an account in the world state whose storage follows the layout of
// a compiled ERC20 contract. Wrapped tokens additionally have a controller, the
// only address allowed to mint and burn.
package tokens

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrNotController         = errors.New("caller is not the token controller")
	ErrSupplyOverflow        = errors.New("total supply overflows uint256")
	ErrInvalidAmount         = errors.New("token amount out of uint256 range")
	ErrNotToken              = errors.New("no token at address")
	ErrAlreadyDeployed       = errors.New("account already in use")
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Token is the standard fungible-token capability.
type Token interface {
	Address() common.Address
	BalanceOf(holder common.Address) *big.Int
	TotalSupply() *big.Int
	Allowance(owner, spender common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Approve(owner, spender common.Address, amount *big.Int) error
}

// Wrapped is a token whose supply is managed by a controller.
type Wrapped interface {
	Token
	Name() string
	Decimals() uint8
	Controller() common.Address
	Mint(caller, to common.Address, amount *big.Int) error
	Burn(caller, from common.Address, amount *big.Int) error
}

// Resolver finds the token living at an address.
type Resolver interface {
	Token(addr common.Address) (Token, error)
	Wrapped(addr common.Address) (Wrapped, error)
}

// stateToken is a token backed by world-state storage.
type stateToken struct {
	db   vm.StateDB
	addr common.Address
}

func (t *stateToken) Address() common.Address {
	return t.addr
}

func (t *stateToken) BalanceOf(holder common.Address) *big.Int {
	return getBig(t.db, t.addr, balanceSlot(holder))
}

func (t *stateToken) TotalSupply() *big.Int {
	return getBig(t.db, t.addr, totalSupplySlot)
}

func (t *stateToken) Allowance(owner, spender common.Address) *big.Int {
	return getBig(t.db, t.addr, allowanceSlot(owner, spender))
}

func (t *stateToken) Name() string {
	return ReadString(t.db, t.addr, nameSlot)
}

func (t *stateToken) Decimals() uint8 {
	return uint8(getBig(t.db, t.addr, decimalsSlot).Uint64())
}

func (t *stateToken) Controller() common.Address {
	return common.BytesToAddress(t.db.GetState(t.addr, controllerSlot).Bytes())
}

func (t *stateToken) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	fromBalance := t.BalanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, amount)
	}
	setBig(t.db, t.addr, balanceSlot(from), new(big.Int).Sub(fromBalance, amount))
	// read after write so that a self-transfer is a no-op
	setBig(t.db, t.addr, balanceSlot(to), new(big.Int).Add(t.BalanceOf(to), amount))
	return nil
}

func (t *stateToken) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance := t.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance, amount)
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	// infinite approvals are not consumed
	if allowance.Cmp(maxUint256) != 0 {
		setBig(t.db, t.addr, allowanceSlot(from, spender), new(big.Int).Sub(allowance, amount))
	}
	return nil
}

func (t *stateToken) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	setBig(t.db, t.addr, allowanceSlot(owner, spender), amount)
	return nil
}

func (t *stateToken) Mint(caller, to common.Address, amount *big.Int) error {
	if caller != t.Controller() {
		return ErrNotController
	}
	return t.mint(to, amount)
}

func (t *stateToken) mint(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	supply := new(big.Int).Add(t.TotalSupply(), amount)
	if supply.Cmp(maxUint256) > 0 {
		return ErrSupplyOverflow
	}
	setBig(t.db, t.addr, totalSupplySlot, supply)
	setBig(t.db, t.addr, balanceSlot(to), new(big.Int).Add(t.BalanceOf(to), amount))
	return nil
}

func (t *stateToken) Burn(caller, from common.Address, amount *big.Int) error {
	if caller != t.Controller() {
		return ErrNotController
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance := t.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, burning %s", ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	setBig(t.db, t.addr, balanceSlot(from), new(big.Int).Sub(balance, amount))
	setBig(t.db, t.addr, totalSupplySlot, new(big.Int).Sub(t.TotalSupply(), amount))
	return nil
}

// KindOf reports how the account at addr was deployed.
func KindOf(db vm.StateDB, addr common.Address) Kind {
	return Kind(db.GetState(addr, kindSlot).Big().Uint64())
}

// StateResolver resolves tokens deployed into a world state.
type StateResolver struct {
	db vm.StateDB
}

// NewResolver returns a resolver over db.
func NewResolver(db vm.StateDB) *StateResolver {
	return &StateResolver{db: db}
}

// Token returns the token at addr, of any kind.
func (r *StateResolver) Token(addr common.Address) (Token, error) {
	if KindOf(r.db, addr) == KindNone {
		return nil, fmt.Errorf("%w: %s", ErrNotToken, addr.Hex())
	}
	return &stateToken{db: r.db, addr: addr}, nil
}

// Wrapped returns the wrapped token at addr.
func (r *StateResolver) Wrapped(addr common.Address) (Wrapped, error) {
	if KindOf(r.db, addr) != KindWrapped {
		return nil, fmt.Errorf("%w: %s is not a wrapped token", ErrNotToken, addr.Hex())
	}
	return &stateToken{db: r.db, addr: addr}, nil
}

// Params describe a token to deploy.
type Params struct {
	Name     string
	Decimals uint8
}

func deploy(db vm.StateDB, addr common.Address, kind Kind, p Params) (*stateToken, error) {
	if KindOf(db, addr) != KindNone || db.GetNonce(addr) != 0 || db.GetCodeSize(addr) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	if !db.Exist(addr) {
		db.CreateAccount(addr)
	}
	// contract accounts start at nonce 1 (EIP-161)
	db.SetNonce(addr, 1)
	db.SetState(addr, kindSlot, common.BigToHash(new(big.Int).SetUint64(uint64(kind))))
	setBig(db, addr, decimalsSlot, new(big.Int).SetUint64(uint64(p.Decimals)))
	WriteString(db, addr, nameSlot, p.Name)
	return &stateToken{db: db, addr: addr}, nil
}

// DeployWrapped creates a wrapped token at addr controlled by controller.
func DeployWrapped(db vm.StateDB, addr common.Address, p Params, controller common.Address) (Wrapped, error) {
	t, err := deploy(db, addr, KindWrapped, p)
	if err != nil {
		return nil, err
	}
	db.SetState(addr, controllerSlot, controller.Hash())
	return t, nil
}

// DeployExternal creates a plain token at addr with supply credited to holder.
func DeployExternal(db vm.StateDB, addr common.Address, p Params, holder common.Address, supply *big.Int) (Token, error) {
	t, err := deploy(db, addr, KindExternal, p)
	if err != nil {
		return nil, err
	}
	if supply != nil && supply.Sign() > 0 {
		if err := t.mint(holder, supply); err != nil {
			return nil, err
		}
	}
	return t, nil
}
