// Package validate is the structural validation collaborator. It checks
// inbound order payloads against a JSON schema and applies the id/email/
// amount rules the workflow core relies on, so the orchestrator itself never
// re-implements structural validation.
package validate

import (
	"fmt"
	"regexp"

	"github.com/govalues/decimal"
	"github.com/xeipuuv/gojsonschema"

	"orderflow/internal/domain/orders"
)

// Identifier and email shapes accepted on the wire.
var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Amounts must lie in (0, 1_000_000].
var maxAmount = decimal.MustParse("1000000")

// orderSchema is the structural contract for inbound create-order payloads.
const orderSchema = `{
  "type": "object",
  "required": ["order_id", "customer_id", "items"],
  "properties": {
    "order_id": {"type": "string", "minLength": 1},
    "customer_id": {"type": "string", "minLength": 1},
    "customer_email": {"type": "string"},
    "priority": {"type": "string"},
    "delivery_address": {"type": ["string", "null"]},
    "payment_method": {"type": ["string", "null"]},
    "notes": {"type": "string"},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["product_id", "quantity", "unit_price"],
        "properties": {
          "product_id": {"type": "string", "minLength": 1},
          "quantity": {"type": "integer", "minimum": 1},
          "unit_price": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  }
}`

// Validator validates payloads and orders. Construct once, share freely.
type Validator struct {
	schema *gojsonschema.Schema
}

// New compiles the order schema.
func New() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(orderSchema))
	if err != nil {
		return nil, fmt.Errorf("compile order schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateMessage checks a raw JSON create-order payload against the schema.
// Returns ok plus a list of human-readable problems.
func (v *Validator) ValidateMessage(body []byte) (bool, []string) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, []string{"payload is not valid JSON: " + err.Error()}
	}
	if result.Valid() {
		return true, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return false, problems
}

// ValidateOrder applies the semantic rules on a built aggregate: id shape,
// items present, amount bounds, delivery address present.
func (v *Validator) ValidateOrder(o *orders.Order) (bool, []string) {
	var problems []string

	if !ValidID(o.ID) {
		problems = append(problems, "order id must match [A-Za-z0-9-]+")
	}
	if !ValidID(o.CustomerID) {
		problems = append(problems, "customer id must match [A-Za-z0-9-]+")
	}
	if len(o.Items) == 0 {
		problems = append(problems, "order must contain at least one item")
	}
	if o.TotalAmount.Sign() <= 0 {
		problems = append(problems, "total amount must be strictly positive")
	}
	if o.TotalAmount.Cmp(maxAmount) > 0 {
		problems = append(problems, "total amount must not exceed 1000000")
	}
	if o.DeliveryAddress == nil || *o.DeliveryAddress == "" {
		problems = append(problems, "delivery address is required")
	}

	return len(problems) == 0, problems
}

// ValidID reports whether an identifier matches the accepted shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidEmail reports whether an email address is structurally plausible.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
