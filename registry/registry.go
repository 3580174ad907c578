package registry

import (
	"fmt"

	"gomultibridge/config"
	"gomultibridge/types"
)

// Route is a (source, destination, token) triple and the backend serving it.
// An empty Token matches every token.
type Route struct {
	Source      string
	Destination string
	Token       string
	Backend     string
}

// Lookup is the read-only registry contract the engine depends on
type Lookup interface {
	Routes(source, destination, token string) []Route
	Resolve(source, destination, token string) (Route, error)
	HasDirectRoute(source, destination, token string) bool
	Chain(id string) (types.Chain, bool)
	Token(id string) (types.Token, bool)
}

// Static is a registry built once from configuration
type Static struct {
	chains map[string]types.Chain
	tokens map[string]types.Token
	routes []Route
}

func New(chains []types.Chain, tokens []types.Token, routes []Route) (*Static, error) {
	s := &Static{
		chains: make(map[string]types.Chain, len(chains)),
		tokens: make(map[string]types.Token, len(tokens)),
		routes: make([]Route, 0, len(routes)),
	}
	for _, c := range chains {
		s.chains[c.ID] = c
	}
	for _, t := range tokens {
		s.tokens[t.ID] = t
	}
	for _, r := range routes {
		if _, ok := s.chains[r.Source]; !ok {
			return nil, fmt.Errorf("route source chain %s not registered", r.Source)
		}
		if _, ok := s.chains[r.Destination]; !ok {
			return nil, fmt.Errorf("route destination chain %s not registered", r.Destination)
		}
		if r.Token != "" {
			if _, ok := s.tokens[r.Token]; !ok {
				return nil, fmt.Errorf("route token %s not registered", r.Token)
			}
		}
		s.routes = append(s.routes, r)
	}
	return s, nil
}

func FromConfig(cfg *config.Configuration) (*Static, error) {
	routes := make([]Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, Route{
			Source:      r.Source,
			Destination: r.Destination,
			Token:       r.Token,
			Backend:     r.Backend,
		})
	}
	return New(cfg.Chains, cfg.Tokens, routes)
}

// Routes returns routes with an explicit token first, then wildcard
// routes, each group in declaration order
func (s *Static) Routes(source, destination, token string) []Route {
	var exact, wildcard []Route
	for _, r := range s.routes {
		if r.Source != source || r.Destination != destination {
			continue
		}
		switch {
		case r.Token == "":
			wildcard = append(wildcard, r)
		case token != "" && r.Token == token:
			exact = append(exact, r)
		}
	}
	return append(exact, wildcard...)
}

func (s *Static) Resolve(source, destination, token string) (Route, error) {
	routes := s.Routes(source, destination, token)
	if len(routes) == 0 {
		return Route{}, types.NewError(types.ErrCodeRouteUnsupported,
			fmt.Sprintf("no backend serves %s -> %s (%s)", source, destination, token), nil)
	}
	return routes[0], nil
}

func (s *Static) HasDirectRoute(source, destination, token string) bool {
	return len(s.Routes(source, destination, token)) > 0
}

func (s *Static) Chain(id string) (types.Chain, bool) {
	c, ok := s.chains[id]
	return c, ok
}

func (s *Static) Token(id string) (types.Token, bool) {
	t, ok := s.tokens[id]
	return t, ok
}
