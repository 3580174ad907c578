package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// backend names accepted in routes
var Backends = map[string]bool{
	"relay-bridge":     true,
	"routed-messaging": true,
	"settlement-swap":  true,
}

func (c *Configuration) Validate() error {
	var errs []error

	if c.Server.Storage != "redis" && c.Server.Storage != "file" {
		errs = append(errs, fmt.Errorf("server.storage must be redis or file, got %q", c.Server.Storage))
	}

	chains := make(map[string]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ID == "" {
			errs = append(errs, errors.New("chain with empty id"))
			continue
		}
		if chains[ch.ID] {
			errs = append(errs, fmt.Errorf("duplicate chain %s", ch.ID))
		}
		chains[ch.ID] = true
	}

	tokens := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.ID == "" {
			errs = append(errs, errors.New("token with empty id"))
			continue
		}
		tokens[t.ID] = true
	}

	for i, r := range c.Routes {
		if !chains[r.Source] || !chains[r.Destination] {
			errs = append(errs, fmt.Errorf("route %d references unknown chain %s -> %s", i, r.Source, r.Destination))
		}
		if r.Token != "" && !tokens[r.Token] {
			errs = append(errs, fmt.Errorf("route %d references unknown token %s", i, r.Token))
		}
		if !Backends[r.Backend] {
			errs = append(errs, fmt.Errorf("route %d has unknown backend %q", i, r.Backend))
		}
	}

	for token, price := range c.Prices {
		if _, err := decimal.NewFromString(price); err != nil {
			errs = append(errs, fmt.Errorf("price of %s: %w", token, err))
		}
	}

	return errors.Join(errs...)
}
