package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[PurgeExpiredMessage]     = (*PurgeExpiredCommand)(nil)
	_ gocmd.Commander[ValidateConfigMessage]   = (*ValidateConfigCommand)(nil)
	_ gocmd.Commander[RedispatchUploadMessage] = (*RedispatchUploadCommand)(nil)
)
