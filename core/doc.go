// Package core contains the account-linking handshake engine: configuration
// validation, the connect/callback phases, correlation token and linked
// token contracts, and the upload dispatch contract. Storage, queue and
// transport adapters depend on this package; core must not depend on them.
package core
