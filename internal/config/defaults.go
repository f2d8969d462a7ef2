package config

// DefaultPipeline returns the settings used when no pipeline file is given.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Research: Research{
			MinSources:             3,
			ProviderTimeoutSeconds: 12,
			MaxPerProvider:         8,
			MinLinkScore:           2,
			Providers: []ResearchProvider{
				{Name: "pubmed", Weight: 5, Subjects: []string{"biomed", "general"}},
				{Name: "arxiv", Weight: 4, Subjects: []string{"math", "physics", "cs", "earth", "general"}},
				{Name: "nasa_ads", Weight: 5, Subjects: []string{"physics"}},
				{Name: "zenodo", Weight: 3, Subjects: []string{"math", "earth", "biomed", "cs", "general"}},
				{Name: "newsapi", Weight: 1.5, Subjects: []string{"general", "earth", "biomed"}},
			},
		},
		LLM: LLM{
			TimeoutSeconds: 90,
			Endpoints: []LLMEndpoint{
				{Name: "openai", BaseURL: "https://api.openai.com/v1/chat/completions", APIKeyEnv: "OPENAI_API_KEY"},
				{Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1/chat/completions", APIKeyEnv: "OPENROUTER_API_KEY"},
			},
			Chain: []ChainEntry{
				{Provider: "openai", Model: "gpt-4o"},
				{Provider: "openai", Model: "gpt-4o-mini"},
				{Provider: "openrouter", Model: "anthropic/claude-3.5-sonnet"},
			},
		},
		Voices: Voices{
			Aliases: map[string][]string{
				"bryan": {"brian"},
			},
		},
		Naming: Naming{
			Prefix: "ep",
			Width:  6,
			CategoryCodes: map[string]string{
				"physics":     "phys",
				"mathematics": "math",
				"biology":     "bio",
				"medicine":    "med",
				"astronomy":   "astro",
				"technology":  "tech",
				"environment": "env",
			},
		},
		Audio: Audio{
			BitrateKbps: 128,
			Concurrency: 4,
		},
		Retry: Retry{
			Attempts:    3,
			BaseDelayMS: 500,
			MaxDelayMS:  5000,
		},
		Feed: Feed{
			Title:       "Research Podcast",
			Description: "Two-voice episodes grounded in published research.",
			Author:      "Research Podcast",
		},
	}
}

// withDefaults fills every unset value of p from d. Lists and tables set in
// the file replace the defaults wholesale.
func (p Pipeline) withDefaults(d Pipeline) Pipeline {
	r := &p.Research
	if r.MinSources == 0 {
		r.MinSources = d.Research.MinSources
	}
	if r.ProviderTimeoutSeconds == 0 {
		r.ProviderTimeoutSeconds = d.Research.ProviderTimeoutSeconds
	}
	if r.MaxPerProvider == 0 {
		r.MaxPerProvider = d.Research.MaxPerProvider
	}
	if r.MinLinkScore == 0 {
		r.MinLinkScore = d.Research.MinLinkScore
	}
	if len(r.Providers) == 0 {
		r.Providers = d.Research.Providers
	}

	if p.LLM.TimeoutSeconds == 0 {
		p.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if len(p.LLM.Endpoints) == 0 {
		p.LLM.Endpoints = d.LLM.Endpoints
	}
	if len(p.LLM.Chain) == 0 {
		p.LLM.Chain = d.LLM.Chain
	}

	if p.Voices.Aliases == nil {
		p.Voices.Aliases = d.Voices.Aliases
	}

	if p.Naming.Prefix == "" {
		p.Naming.Prefix = d.Naming.Prefix
	}
	if p.Naming.Width == 0 {
		p.Naming.Width = d.Naming.Width
	}
	if p.Naming.CategoryCodes == nil {
		p.Naming.CategoryCodes = d.Naming.CategoryCodes
	}

	if p.Audio.BitrateKbps == 0 {
		p.Audio.BitrateKbps = d.Audio.BitrateKbps
	}
	if p.Audio.Concurrency == 0 {
		p.Audio.Concurrency = d.Audio.Concurrency
	}

	if p.Retry.Attempts == 0 {
		p.Retry.Attempts = d.Retry.Attempts
	}
	if p.Retry.BaseDelayMS == 0 {
		p.Retry.BaseDelayMS = d.Retry.BaseDelayMS
	}
	if p.Retry.MaxDelayMS == 0 {
		p.Retry.MaxDelayMS = d.Retry.MaxDelayMS
	}

	if p.Feed.Title == "" {
		p.Feed.Title = d.Feed.Title
	}
	if p.Feed.Description == "" {
		p.Feed.Description = d.Feed.Description
	}
	if p.Feed.Author == "" {
		p.Feed.Author = d.Feed.Author
	}
	return p
}
