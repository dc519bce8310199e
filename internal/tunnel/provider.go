package tunnel

import (
	"fmt"
	"regexp"
	"sort"
)

// Provider describes how a tunnel provider names its ephemeral endpoints.
type Provider struct {
	Name   string
	Domain string
}

var providers = map[string]Provider{
	"cloudflare": {Name: "cloudflare", Domain: "trycloudflare.com"},
	"ngrok":      {Name: "ngrok", Domain: "ngrok-free.app"},
}

// LookupProvider returns the provider registered under name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// ProviderNames returns the registered provider names, sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DomainPattern builds the endpoint pattern https://<token>.<domain>.
func DomainPattern(domain string) *regexp.Regexp {
	return regexp.MustCompile(`https://[a-zA-Z0-9_-]+\.` + regexp.QuoteMeta(domain))
}

// CompilePattern resolves the endpoint pattern for cfg. An explicit Pattern
// wins over Domain, which wins over the provider's default domain.
func CompilePattern(cfg *Config) (*regexp.Regexp, error) {
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint pattern: %w", err)
		}
		return re, nil
	}

	if cfg.Domain != "" {
		return DomainPattern(cfg.Domain), nil
	}

	p, ok := LookupProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown tunnel provider: %s", cfg.Provider)
	}
	return DomainPattern(p.Domain), nil
}
