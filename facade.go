package providerlink

import (
	"fmt"

	linkcommand "github.com/goliatone/go-provider-link/command"
	linkquery "github.com/goliatone/go-provider-link/query"
)

type CommandQueryService interface {
	linkcommand.TempTokenPurger
	linkcommand.UploadRedispatcher
	linkquery.TokenReader
}

type Commands struct {
	PurgeExpired     *linkcommand.PurgeExpiredCommand
	ValidateConfig   *linkcommand.ValidateConfigCommand
	RedispatchUpload *linkcommand.RedispatchUploadCommand
}

type Queries struct {
	GetToken  *linkquery.GetTokenQuery
	FindToken *linkquery.FindTokenQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("providerlink: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			PurgeExpired:     linkcommand.NewPurgeExpiredCommand(service),
			ValidateConfig:   linkcommand.NewValidateConfigCommand(),
			RedispatchUpload: linkcommand.NewRedispatchUploadCommand(service),
		},
		queries: Queries{
			GetToken:  linkquery.NewGetTokenQuery(service),
			FindToken: linkquery.NewFindTokenQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
