package types //nolint:revive // package name is intentional

// ProviderTarget names one (provider, model) pair a request can be routed
// to. It carries no credentials or transport details; those are resolved
// from the matching protocol manifest and the secret chain at call time.
type ProviderTarget struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`

	// BaseURLOverride replaces the manifest's default endpoint base, for
	// self-hosted or proxied deployments of a provider's API.
	BaseURLOverride string `json:"base_url_override,omitempty"`

	// APIKeySource is a secret reference (e.g. "env://OPENAI_API_KEY" or
	// "vault://secret/data/openai#api_key"). Empty defers to the manifest's
	// default auth.env_var.
	APIKeySource string `json:"api_key_source,omitempty"`

	// Weight is carried with the target but not read by the router or the
	// executor, so it does not affect fallback order; weighted selection
	// uses router.TargetConfig.Weight.
	Weight float64 `json:"weight,omitempty"`

	// Tags are carried with the target but not read by the router;
	// tag-based routing matches router.TargetConfig.Tags.
	Tags []string `json:"tags,omitempty"`
}

// String renders the target the way manifests and logs refer to it.
func (t ProviderTarget) String() string {
	return t.ProviderID + "/" + t.ModelID
}

// Key is the stable identity used by resilience state (circuit breaker,
// rate limiter, stats) keyed per target.
func (t ProviderTarget) Key() string {
	if t.BaseURLOverride != "" {
		return t.ProviderID + "/" + t.ModelID + "@" + t.BaseURLOverride
	}
	return t.ProviderID + "/" + t.ModelID
}
