package sqlstore

import "github.com/goliatone/go-provider-link/core"

var (
	_ core.TempTokenStore         = (*TempTokenStore)(nil)
	_ core.TokenStore             = (*TokenStore)(nil)
	_ core.TokenStore             = (*CachedTokenStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
