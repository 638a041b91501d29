package model

import (
	"encoding/json"
	"time"
)

// Well-known admin_settings keys.
const (
	SettingOpenAIConfig = "openai_config"
	SettingEmailConfig  = "email_config"
)

type AdminSetting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type OpenAIConfig struct {
	APIKey string `json:"api_key"`
}

// EmailConfig overrides the environment sender identity. A nil Enabled
// means enabled.
type EmailConfig struct {
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

func (c *EmailConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
