package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provider-link/core"
)

type TempTokenPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type UploadRedispatcher interface {
	Redispatch(ctx context.Context, tokenID string) (core.UploadTask, error)
}

type PurgeExpiredCommand struct {
	purger TempTokenPurger
}

func NewPurgeExpiredCommand(purger TempTokenPurger) *PurgeExpiredCommand {
	return &PurgeExpiredCommand{purger: purger}
}

func (c *PurgeExpiredCommand) Execute(ctx context.Context, _ PurgeExpiredMessage) error {
	if c == nil || c.purger == nil {
		return commandDependencyError("command: temp token purger is required")
	}
	purged, err := c.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, PurgeResult{Purged: purged})
	return nil
}

// ValidateConfigCommand runs the startup validation without building an
// engine, so deploy tooling can check a config ahead of time.
type ValidateConfigCommand struct{}

func NewValidateConfigCommand() *ValidateConfigCommand {
	return &ValidateConfigCommand{}
}

func (c *ValidateConfigCommand) Execute(_ context.Context, msg ValidateConfigMessage) error {
	return core.ValidateConfig(msg.Config)
}

type RedispatchUploadCommand struct {
	dispatcher UploadRedispatcher
}

func NewRedispatchUploadCommand(dispatcher UploadRedispatcher) *RedispatchUploadCommand {
	return &RedispatchUploadCommand{dispatcher: dispatcher}
}

func (c *RedispatchUploadCommand) Execute(ctx context.Context, msg RedispatchUploadMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: upload dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	task, err := c.dispatcher.Redispatch(ctx, msg.TokenID)
	if err != nil {
		return err
	}
	storeResult(ctx, task)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
