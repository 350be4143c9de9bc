package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/ordertrail/internal/common"
	"github.com/Veraticus/ordertrail/internal/gmail"
	"github.com/Veraticus/ordertrail/internal/llm"
)

// LoadLLMConfig loads the completion-service configuration. Precedence is
// the config file (or ORDERTRAIL_ env vars via Viper), then provider
// environment variables, then defaults.
func LoadLLMConfig() (llm.Config, error) {
	cfg := llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	}

	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "anthropic":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("%w: llm.api_key", common.ErrMissingConfig)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	return cfg, nil
}

// LoadMailboxFixturePath returns the fixture file backing the file mailbox
// provider.
func LoadMailboxFixturePath() (string, error) {
	path := ExpandPath(viper.GetString("mailbox.file"))
	if path == "" {
		return "", fmt.Errorf("%w: mailbox.file", common.ErrMissingConfig)
	}
	return path, nil
}

// LoadGmailConfig loads the mailbox provider configuration.
func LoadGmailConfig() (gmail.Config, error) {
	cfg := gmail.Config{
		OAuth: gmail.OAuth2Config{
			ClientID:     viper.GetString("gmail.client_id"),
			ClientSecret: viper.GetString("gmail.client_secret"),
			TokenFile:    ExpandPath(viper.GetString("gmail.token_file")),
		},
		Query: viper.GetString("gmail.query"),
	}

	if cfg.OAuth.ClientID == "" {
		cfg.OAuth.ClientID = os.Getenv("GMAIL_CLIENT_ID")
	}
	if cfg.OAuth.ClientSecret == "" {
		cfg.OAuth.ClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return cfg, fmt.Errorf("%w: gmail.client_id and gmail.client_secret", common.ErrMissingConfig)
	}
	if cfg.OAuth.TokenFile == "" {
		cfg.OAuth.TokenFile = ExpandPath("~/.config/ordertrail/gmail-token.json")
	}

	return cfg, nil
}
