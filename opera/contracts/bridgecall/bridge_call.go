// Package bridgecall exposes a Bridge through the calling convention of the
// deployed bridge contract: ABI-encoded calldata in, ABI-encoded return data
// out, with a gas charge per method.
//
// Overview:
//
//	Relayers and wallets built against the bridge contract talk to it with raw
//	calldata. The Contract decodes that calldata, dispatches on the 4-byte
//	method selector and runs the matching Bridge operation, so those clients
//	work unchanged against this node.
//
// Security Model:
//   - Only payable methods (lock) accept attached value
//   - Calldata must decode exactly against the method's declared inputs
//   - Every method is charged gas before it runs
//   - A failed operation reverts with an Error(string) reason and changes no state
//
// Gas Costs:
//
//	- Views: SloadGasEIP2200
//	- Digest helpers: Sha3Gas + Sha3WordGas per calldata word
//	- Signature checks: EcrecoverGas per signature
//	- lock/unlock: CallValueTransferGas + storage writes
//	- registerAsset: CreateGas + storage writes
package bridgecall

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-opera-bridge/bridge"
	"github.com/rony4d/go-opera-bridge/bridge/quorum"
)

// ContractABI is the JSON ABI of the bridge contract methods:
//   - lock(bytes recipient, address asset, uint256 amount) payable
//   - unlock(address recipient, address asset, uint256 amount, address[] signers, uint8[] v, bytes32[] r, bytes32[] s)
//   - registerAsset(string name, uint8 precision, address[] signers, uint8[] v, bytes32[] r, bytes32[] s) returns (address)
//   - verifyValidators(bytes32 digest, address[] signers, uint8[] v, bytes32[] r, bytes32[] s) returns (bool)
//   - hashValidatorArrays, hashNewAssetRegistration, hashUnlock: action digests
//   - getAssetAddress, isWrappedAsset, totalPower, balanceOf: views
const ContractABI = `[
	{"type":"function","name":"lock","stateMutability":"payable","inputs":[
		{"name":"recipient","type":"bytes"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"unlock","stateMutability":"nonpayable","inputs":[
		{"name":"recipient","type":"address"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},
		{"name":"signers","type":"address[]"},{"name":"v","type":"uint8[]"},{"name":"r","type":"bytes32[]"},{"name":"s","type":"bytes32[]"}],"outputs":[]},
	{"type":"function","name":"registerAsset","stateMutability":"nonpayable","inputs":[
		{"name":"name","type":"string"},{"name":"precision","type":"uint8"},
		{"name":"signers","type":"address[]"},{"name":"v","type":"uint8[]"},{"name":"r","type":"bytes32[]"},{"name":"s","type":"bytes32[]"}],"outputs":[
		{"name":"asset","type":"address"}]},
	{"type":"function","name":"verifyValidators","stateMutability":"view","inputs":[
		{"name":"digest","type":"bytes32"},
		{"name":"signers","type":"address[]"},{"name":"v","type":"uint8[]"},{"name":"r","type":"bytes32[]"},{"name":"s","type":"bytes32[]"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"hashValidatorArrays","stateMutability":"view","inputs":[
		{"name":"identities","type":"address[]"},{"name":"powers","type":"uint64[]"}],"outputs":[
		{"name":"","type":"bytes32"}]},
	{"type":"function","name":"hashNewAssetRegistration","stateMutability":"view","inputs":[
		{"name":"name","type":"string"},{"name":"precision","type":"uint8"}],"outputs":[
		{"name":"","type":"bytes32"}]},
	{"type":"function","name":"hashUnlock","stateMutability":"view","inputs":[
		{"name":"recipient","type":"address"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[
		{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getAssetAddress","stateMutability":"view","inputs":[
		{"name":"name","type":"string"}],"outputs":[
		{"name":"","type":"address"}]},
	{"type":"function","name":"isWrappedAsset","stateMutability":"view","inputs":[
		{"name":"asset","type":"address"}],"outputs":[
		{"name":"","type":"bool"}]},
	{"type":"function","name":"totalPower","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"asset","type":"address"},{"name":"holder","type":"address"}],"outputs":[
		{"name":"","type":"uint256"}]}
]`

var (
	contractABI abi.ABI

	// revertSelector is the selector of Error(string), the standard revert reason.
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	revertArgs     abi.Arguments
)

func init() {
	var err error
	contractABI, err = abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	revertArgs = abi.Arguments{{Type: stringType}}
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return contractABI
}

// signature verification dominates unlock and registerAsset
const (
	lockGas     = params.CallValueTransferGas + 2*params.SstoreSetGasEIP2200
	unlockGas   = params.CallValueTransferGas + 2*params.SstoreSetGasEIP2200
	registerGas = params.CreateGas + 6*params.SstoreSetGasEIP2200
	viewGas     = params.SloadGasEIP2200
)

// Contract dispatches calldata to a Bridge.
type Contract struct {
	b *bridge.Bridge
}

// New returns the call interface of b.
func New(b *bridge.Bridge) *Contract {
	return &Contract{b: b}
}

// Run executes one call.
//
// Parameters:
//   - caller: msg.sender of the call
//   - value: attached native value, nil for none
//   - input: method selector followed by the ABI-encoded arguments
//   - suppliedGas: gas available for the call
//
// Returns the ABI-encoded outputs and the gas left. A failed operation returns
// vm.ErrExecutionReverted together with an Error(string) revert reason.
func (c *Contract) Run(caller common.Address, value *big.Int, input []byte, suppliedGas uint64) ([]byte, uint64, error) {
	if len(input) < 4 {
		return nil, 0, vm.ErrExecutionReverted
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, 0, vm.ErrExecutionReverted
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() != 0 && !method.IsPayable() {
		return revert(fmt.Errorf("%s is not payable", method.Name), suppliedGas)
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return revert(fmt.Errorf("bad %s calldata: %v", method.Name, err), suppliedGas)
	}

	cost := gasOf(method.Name, args, len(input))
	if suppliedGas < cost {
		return nil, 0, vm.ErrOutOfGas
	}
	suppliedGas -= cost

	out, err := c.dispatch(method.Name, caller, value, args)
	if err != nil {
		log.Debug("Bridge call reverted", "method", method.Name, "caller", caller, "err", err)
		return revert(err, suppliedGas)
	}
	ret, err := method.Outputs.Pack(out...)
	if err != nil {
		return nil, 0, err
	}
	return ret, suppliedGas, nil
}

func gasOf(method string, args []interface{}, inputLen int) uint64 {
	switch method {
	case "lock":
		return lockGas
	case "unlock":
		return unlockGas + uint64(len(args[3].([]common.Address)))*params.EcrecoverGas
	case "registerAsset":
		return registerGas + uint64(len(args[2].([]common.Address)))*params.EcrecoverGas
	case "verifyValidators":
		return viewGas + uint64(len(args[1].([]common.Address)))*params.EcrecoverGas
	case "hashValidatorArrays", "hashNewAssetRegistration", "hashUnlock":
		return params.Sha3Gas + uint64((inputLen+31)/32)*params.Sha3WordGas
	}
	return viewGas
}

func (c *Contract) dispatch(method string, caller common.Address, value *big.Int, args []interface{}) ([]interface{}, error) {
	switch method {
	case "lock":
		err := c.b.Lock(bridge.CallContext{From: caller, Value: value}, args[0].([]byte), args[1].(common.Address), args[2].(*big.Int))
		return nil, err

	case "unlock":
		bundle, err := bundleOf(args[3:])
		if err != nil {
			return nil, err
		}
		return nil, c.b.Unlock(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int), bundle)

	case "registerAsset":
		bundle, err := bundleOf(args[2:])
		if err != nil {
			return nil, err
		}
		addr, err := c.b.RegisterAsset(args[0].(string), args[1].(uint8), bundle)
		if err != nil {
			return nil, err
		}
		return []interface{}{addr}, nil

	case "verifyValidators":
		bundle, err := bundleOf(args[1:])
		if err != nil {
			// a malformed bundle is just not a quorum
			return []interface{}{false}, nil
		}
		return []interface{}{c.b.VerifyValidators(args[0].([32]byte), bundle)}, nil

	case "hashValidatorArrays":
		digest, err := c.b.HashValidatorArrays(args[0].([]common.Address), args[1].([]uint64))
		if err != nil {
			return nil, err
		}
		return []interface{}{digest}, nil

	case "hashNewAssetRegistration":
		return []interface{}{c.b.HashNewAssetRegistration(args[0].(string), args[1].(uint8))}, nil

	case "hashUnlock":
		digest, err := c.b.HashUnlock(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{digest}, nil

	case "getAssetAddress":
		return []interface{}{c.b.GetAssetAddress(args[0].(string))}, nil

	case "isWrappedAsset":
		return []interface{}{c.b.IsWrappedAsset(args[0].(common.Address))}, nil

	case "totalPower":
		return []interface{}{new(big.Int).SetUint64(c.b.TotalPower())}, nil

	case "balanceOf":
		bal, err := c.b.BalanceOf(args[0].(common.Address), args[1].(common.Address))
		if err != nil {
			return nil, err
		}
		return []interface{}{bal}, nil
	}
	return nil, fmt.Errorf("unsupported method %s", method)
}

// bundleOf assembles a signature bundle from the parallel signers, v, r and s
// arrays of the contract interface.
func bundleOf(args []interface{}) (quorum.Bundle, error) {
	signers := args[0].([]common.Address)
	v := args[1].([]uint8)
	r := args[2].([][32]byte)
	s := args[3].([][32]byte)
	if len(v) != len(signers) || len(r) != len(signers) || len(s) != len(signers) {
		return quorum.Bundle{}, fmt.Errorf("%w: %d signers, %d v, %d r, %d s", quorum.ErrMalformedBundle, len(signers), len(v), len(r), len(s))
	}
	var bundle quorum.Bundle
	for i, signer := range signers {
		bundle.Append(signer, quorum.Signature{V: v[i], R: r[i], S: s[i]})
	}
	return bundle, nil
}

// BundleArgs splits a bundle into the signers, v, r and s arrays expected by
// unlock, registerAsset and verifyValidators.
func BundleArgs(bundle quorum.Bundle) ([]common.Address, []uint8, [][32]byte, [][32]byte) {
	v := make([]uint8, len(bundle.Signatures))
	r := make([][32]byte, len(bundle.Signatures))
	s := make([][32]byte, len(bundle.Signatures))
	for i, sig := range bundle.Signatures {
		v[i], r[i], s[i] = sig.V, sig.R, sig.S
	}
	return bundle.Signers, v, r, s
}

func revert(err error, gasLeft uint64) ([]byte, uint64, error) {
	data, packErr := revertArgs.Pack(err.Error())
	if packErr != nil {
		return nil, gasLeft, vm.ErrExecutionReverted
	}
	return append(common.CopyBytes(revertSelector), data...), gasLeft, vm.ErrExecutionReverted
}
