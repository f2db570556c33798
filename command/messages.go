package command

import (
	"strings"

	"github.com/goliatone/go-provider-link/core"
)

const (
	TypePurgeExpired     = "provider_link.command.temp_tokens.purge_expired"
	TypeValidateConfig   = "provider_link.command.config.validate"
	TypeRedispatchUpload = "provider_link.command.upload.redispatch"
)

type PurgeExpiredMessage struct{}

func (PurgeExpiredMessage) Type() string { return TypePurgeExpired }

func (PurgeExpiredMessage) Validate() error { return nil }

// PurgeResult is stored on the command result collector.
type PurgeResult struct {
	Purged int
}

type ValidateConfigMessage struct {
	Config core.Config
}

func (ValidateConfigMessage) Type() string { return TypeValidateConfig }

func (ValidateConfigMessage) Validate() error { return nil }

type RedispatchUploadMessage struct {
	TokenID string
}

func (RedispatchUploadMessage) Type() string { return TypeRedispatchUpload }

func (m RedispatchUploadMessage) Validate() error {
	if strings.TrimSpace(m.TokenID) == "" {
		return commandValidationError("token_id", "token id is required")
	}
	return nil
}
