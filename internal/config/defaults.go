package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "warn",
			LogFormat:       "text",
			DefaultProvider: "groq",
		},
		Providers: map[string]ProviderConfig{
			"groq": {
				Enabled:         true,
				APIBase:         "https://api.groq.com/openai/v1",
				APIKey:          "${GROQ_API_KEY}",
				DefaultModel:    "llama-3.1-8b-instant",
				RateLimitPerMin: 30,
				RateLimitBurst:  5,
			},
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o-mini",
			},
			"claude": {
				Enabled:      false,
				APIBase:      "https://api.anthropic.com/v1",
				APIKey:       "${ANTHROPIC_API_KEY}",
				DefaultModel: "claude-3-5-haiku-20241022",
			},
			"gemini": {
				Enabled:      false,
				APIBase:      "https://generativelanguage.googleapis.com",
				APIKey:       "${GEMINI_API_KEY}",
				DefaultModel: "gemini-2.0-flash",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Agent: AgentConfig{
			MaxIterations: 15,
			MaxTokens:     1024,
			Temperature:   0.7,
		},
		Tools: ToolsConfig{
			Calculator: CalculatorToolConfig{
				Enabled:   true,
				MaxTokens: 256,
			},
			Wikipedia: WikipediaToolConfig{
				Enabled:  true,
				Language: "en",
				TopK:     3,
				MaxChars: 4000,
			},
			Reasoning: ReasoningToolConfig{
				Enabled:     true,
				MaxTokens:   1024,
				Temperature: 0.7,
			},
		},
		RunLog: RunLogConfig{
			Enabled:       false,
			DBPath:        "~/.mathsgpt/runs.db",
			RetentionDays: 90,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
	}
}
