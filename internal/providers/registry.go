package providers

import "strings"

// Spec is the metadata record for one engine vendor.
type Spec struct {
	Name        string   // config value, e.g. "openrouter"
	Keywords    []string // model-name keywords for matching (lowercase)
	DisplayName string   // shown in `guide status`

	// ModelPrefix is stripped from model names before the request is sent.
	ModelPrefix string

	// Gateway / local detection
	IsGateway           bool   // routes any model (OpenRouter, …)
	IsLocal             bool   // local deployment (vLLM, Ollama)
	DetectByKeyPrefix   string // match api_key prefix to identify gateway
	DetectByBaseKeyword string // match substring in api_base URL
	DefaultAPIBase      string // fallback base URL when none is configured

	// StripModelPrefix strips everything up to the last "/" of the model name.
	StripModelPrefix bool

	// Anthropic speaks the Messages API rather than chat completions.
	Anthropic bool

	// SupportsPromptCaching accepts cache_control on content blocks.
	SupportsPromptCaching bool
}

// Label returns the display name, defaulting to the name.
func (s Spec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Specs is the vendor registry. Order = match priority.
var Specs = []Spec{
	{
		Name:        "custom",
		DisplayName: "Custom",
	},
	{
		Name:                  "openrouter",
		Keywords:              []string{"openrouter"},
		DisplayName:           "OpenRouter",
		ModelPrefix:           "openrouter",
		IsGateway:             true,
		DetectByKeyPrefix:     "sk-or-",
		DetectByBaseKeyword:   "openrouter",
		DefaultAPIBase:        "https://openrouter.ai/api/v1",
		SupportsPromptCaching: true,
	},
	{
		Name:                  "anthropic",
		Keywords:              []string{"anthropic", "claude"},
		DisplayName:           "Anthropic",
		DefaultAPIBase:        "https://api.anthropic.com/v1",
		Anthropic:             true,
		SupportsPromptCaching: true,
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		DisplayName:    "DeepSeek",
		ModelPrefix:    "deepseek",
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name:           "groq",
		Keywords:       []string{"groq"},
		DisplayName:    "Groq",
		ModelPrefix:    "groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
	},
	{
		Name:                "ollama",
		Keywords:            []string{"ollama"},
		DisplayName:         "Ollama",
		ModelPrefix:         "ollama",
		IsLocal:             true,
		DetectByBaseKeyword: ":11434",
		DefaultAPIBase:      "http://localhost:11434/v1",
	},
	{
		Name:        "vllm",
		Keywords:    []string{"vllm"},
		DisplayName: "vLLM/Local",
		ModelPrefix: "hosted_vllm",
		IsLocal:     true,
	},
}

// FindByModel matches a standard vendor by model-name keyword (case-insensitive).
// Gateways and local deployments are matched by api_key/api_base instead.
func FindByModel(model string) *Spec {
	modelLower := strings.ToLower(model)
	modelPrefix, _, _ := strings.Cut(modelLower, "/")

	var std []int
	for i := range Specs {
		if !Specs[i].IsGateway && !Specs[i].IsLocal {
			std = append(std, i)
		}
	}
	// Prefer explicit vendor prefix.
	for _, i := range std {
		if modelPrefix != "" && strings.ReplaceAll(modelPrefix, "-", "_") == Specs[i].Name {
			return &Specs[i]
		}
	}
	for _, i := range std {
		for _, kw := range Specs[i].Keywords {
			if strings.Contains(modelLower, kw) {
				return &Specs[i]
			}
		}
	}
	return nil
}

// FindGateway detects a gateway or local deployment.
// Priority: (1) explicit provider name, (2) api_key prefix, (3) api_base keyword.
func FindGateway(providerName, apiKey, apiBase string) *Spec {
	if providerName != "" {
		if s := FindByName(providerName); s != nil && (s.IsGateway || s.IsLocal) {
			return s
		}
	}
	for i := range Specs {
		spec := &Specs[i]
		if spec.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
		if spec.DetectByBaseKeyword != "" && strings.Contains(apiBase, spec.DetectByBaseKeyword) {
			return spec
		}
	}
	return nil
}

// FindByName returns the Spec whose Name equals name.
func FindByName(name string) *Spec {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for i := range Specs {
		if Specs[i].Name == name {
			return &Specs[i]
		}
	}
	return nil
}
