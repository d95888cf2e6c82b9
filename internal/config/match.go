package config

import (
	"github.com/deepscifi/guide/internal/providers"
)

// ProviderName resolves which vendor serves the configured model.
//
// Priority order:
//  1. Explicit provider.name
//  2. Gateway detected from the API key or base URL
//  3. Vendor prefix or keyword in the model string
func (c *Config) ProviderName() string {
	if c.Provider.Name != "" {
		return c.Provider.Name
	}
	if spec := providers.FindGateway("", c.Provider.APIKey, c.Provider.APIBase); spec != nil {
		return spec.Name
	}
	if spec := providers.FindByModel(c.Agent.Model); spec != nil {
		return spec.Name
	}
	return ""
}

// ProviderParams returns the values needed to construct the engine.
func (c *Config) ProviderParams() providers.Params {
	return providers.Params{
		APIKey:       c.Provider.APIKey,
		APIBase:      c.Provider.APIBase,
		ExtraHeaders: c.Provider.ExtraHeaders,
		DefaultModel: c.Agent.Model,
		ProviderName: c.ProviderName(),
	}
}
