package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/storefront/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct runs the struct tag rules of v.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

// ParseOrderResponse parses an order endpoint body. When ok is true the body
// must carry a base64 transaction; otherwise it must carry an error message.
func ParseOrderResponse(data []byte, ok bool) (*types.OrderResponse, error) {
	var resp types.OrderResponse

	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	if ok {
		if err := validate.Var(resp.Transaction, "required,base64"); err != nil {
			return nil, fmt.Errorf("order response transaction is invalid: %w", err)
		}
		return &resp, nil
	}

	if resp.Error == "" {
		return nil, fmt.Errorf("order response carries no error message")
	}

	return &resp, nil
}

// ParsePartner parses and validates a partner record
func ParsePartner(data []byte) (*types.Partner, error) {
	var p types.Partner

	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse partner: %w", err)
	}

	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("partner validation failed: %w", err)
	}

	if _, err := ParsePublicKey(p.AssociatedProgram.TokenAddress); err != nil {
		return nil, fmt.Errorf("partner token address: %w", err)
	}

	return &p, nil
}

// SerializeState converts a storefront State to JSON
func SerializeState(state *types.State) ([]byte, error) {
	return json.Marshal(state)
}
