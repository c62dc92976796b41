package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultBackend:        "ollama",
			MaxConcurrentMessages: 5,
			RequestTimeoutSeconds: 30,
		},
		Backends: map[string]BackendConfig{
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Safety: SafetyConfig{
			MinReplyLength: 10,
		},
		Routing: RoutingConfig{
			Strategy:         "backend",
			PrimaryLanguage:  "en",
			ExtraLanguages:   []string{"es", "de"},
			MinConfidence:    0.3,
			FallbackCategory: "operations",
		},
		Responders: RespondersConfig{},
		Handoff: HandoffConfig{
			EscalationCap:         3,
			LongConversationLimit: 10,
		},
		Conversations: ConversationsConfig{
			Store:          "memory",
			DBPath:         "~/.deskbot/conversations.db",
			RetentionHours: 24,
		},
		Knowledge: KnowledgeConfig{
			Enabled:      false,
			DBPath:       "~/.deskbot/knowledge.db",
			ChunkSize:    512,
			ChunkOverlap: 50,
			SearchTopK:   5,
		},
		Breaker: BreakerConfig{
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 300,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
		},
	}
}
