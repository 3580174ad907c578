package submission

import (
	"fmt"

	"gomultibridge/registry"
	"gomultibridge/types"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func invalid(msg string, err error) error {
	return types.NewError(types.ErrCodeInvalidParams, msg, err)
}

// ValidateParams checks params against the struct rules and the registry.
// Addresses on EVM chains must be valid hex addresses.
func ValidateParams(reg registry.Lookup, params types.TransferParams) error {
	if err := validate.Struct(&params); err != nil {
		return invalid("invalid transfer parameters", err)
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return invalid("amount must be positive", nil)
	}

	src, ok := reg.Chain(params.SourceChain)
	if !ok {
		return invalid("unknown source chain "+params.SourceChain, nil)
	}
	dst, ok := reg.Chain(params.DestinationChain)
	if !ok {
		return invalid("unknown destination chain "+params.DestinationChain, nil)
	}
	for _, id := range []string{params.SourceToken, params.DestinationToken} {
		if _, ok := reg.Token(id); !ok {
			return invalid("unknown token "+id, nil)
		}
	}

	if src.IsEVM() {
		if err := evmAddress(params.Sender); err != nil {
			return invalid("invalid sender", err)
		}
	}
	if dst.IsEVM() {
		if err := evmAddress(params.Recipient); err != nil {
			return invalid("invalid recipient", err)
		}
	}
	return nil
}

func evmAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%q is not an EVM address", addr)
	}
	return ethav.Validate(common.HexToAddress(addr).Hex())
}
