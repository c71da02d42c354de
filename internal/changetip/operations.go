package changetip

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Currencies accepted by pocket and withdraw operations.
const (
	CurrencyBTC = "btc"
	CurrencyUSD = "usd"
)

// Param declares one parameter of an Operation.
type Param struct {
	Name     string
	Usage    string
	Required bool
	// Path parameters fill the {Name} placeholder of the endpoint instead of being
	// sent as query or form values.
	Path bool
	// Rule is a validator tag applied to supplied values, e.g. "oneof=btc usd".
	Rule string
}

// Operation is a fixed endpoint, method and parameter set layered over Client.Call.
type Operation struct {
	Name        string
	Description string
	Endpoint    string
	Method      string
	Params      []Param
}

// Operations lists the API operations exposed by name.
var Operations = []Operation{
	{
		Name:        "tip-url",
		Description: "create a one-time tip URL",
		Endpoint:    "v2/tip-url",
		Method:      http.MethodPost,
		Params: []Param{
			{Name: "amount", Usage: "tip amount, e.g. 5 or $1", Required: true},
			{Name: "message", Usage: "message shown to the recipient"},
		},
	},
	{
		Name:        "me",
		Description: "get the authenticated user's profile",
		Endpoint:    "v2/me",
		Method:      http.MethodGet,
		Params: []Param{
			{Name: "full", Usage: "include the full profile (true|false)", Rule: "boolean"},
		},
	},
	{
		Name:        "balance",
		Description: "get the pocket balance for a currency",
		Endpoint:    "v2/pocket/{currency}/balance",
		Method:      http.MethodGet,
		Params: []Param{
			{Name: "currency", Usage: "pocket currency (btc|usd)", Required: true, Path: true, Rule: "oneof=btc usd"},
		},
	},
	{
		Name:        "transactions",
		Description: "list transactions",
		Endpoint:    "v2/transactions",
		Method:      http.MethodGet,
		Params: []Param{
			{Name: "page", Usage: "page number", Rule: "number"},
			{Name: "per_page", Usage: "results per page", Rule: "number"},
		},
	},
	{
		Name:        "withdraw",
		Description: "withdraw funds to an external address",
		Endpoint:    "v2/withdraw",
		Method:      http.MethodPost,
		Params: []Param{
			{Name: "amount", Usage: "amount to withdraw", Required: true},
			{Name: "address", Usage: "destination address", Required: true},
			{Name: "currency", Usage: "currency of the amount (btc|usd)", Rule: "oneof=btc usd"},
		},
	},
}

var validate = validator.New()

// LookupOperation returns the operation registered under name.
func LookupOperation(name string) (Operation, bool) {
	i := slices.IndexFunc(Operations, func(op Operation) bool { return op.Name == name })
	if i < 0 {
		return Operation{}, false
	}
	return Operations[i], true
}

// Request validates params against the operation and builds the Request for it.
// Empty values count as absent.
func (op Operation) Request(params map[string]string) (Request, error) {
	for name := range params {
		if !slices.ContainsFunc(op.Params, func(p Param) bool { return p.Name == name }) {
			return Request{}, fmt.Errorf("%s: unknown parameter %q: %w", op.Name, name, ErrInvalidParameters)
		}
	}

	endpoint := op.Endpoint
	values := make(map[string]string, len(params))
	for _, p := range op.Params {
		value := params[p.Name]
		if value == "" {
			if p.Required {
				return Request{}, fmt.Errorf("%s: missing required parameter %q: %w", op.Name, p.Name, ErrInvalidParameters)
			}
			continue
		}
		if p.Rule != "" {
			if err := validate.Var(value, p.Rule); err != nil {
				return Request{}, fmt.Errorf("%s: parameter %q: %w: %v", op.Name, p.Name, ErrInvalidParameters, err)
			}
		}
		if p.Path {
			if strings.Contains(value, "/") {
				return Request{}, fmt.Errorf("%s: parameter %q must not contain '/': %w", op.Name, p.Name, ErrInvalidParameters)
			}
			endpoint = strings.ReplaceAll(endpoint, "{"+p.Name+"}", value)
			continue
		}
		values[p.Name] = value
	}

	return Request{Endpoint: endpoint, Method: op.Method, Params: values}, nil
}

// Invoke runs the operation registered under name.
func (c *Client) Invoke(ctx context.Context, name string, params map[string]string) (map[string]any, error) {
	op, ok := LookupOperation(name)
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}

	req, err := op.Request(params)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, req)
}
