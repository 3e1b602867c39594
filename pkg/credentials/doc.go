// Package credentials owns the API key pool: the mapping from issued API
// keys to upstream cookies, the persisted set of cookies the upstream has
// rejected, and the resolver that hands a cookie to each request.
//
// A Store is opened once per process and passed to its users:
//
//	store, err := credentials.Open(ctx, credentials.Options{
//		InvalidFile: "data/invalid_cookies.json",
//		Source:      cfg.Credentials.Pool(),
//	})
//	defer store.Close()
//	resolver := credentials.NewResolver(store)
//
// Every mutation of the invalid set is written through to the file before
// the call returns. The file is replaced by rename, so the management
// console and the gateway can share it as independent processes. Marking a
// cookie invalid does not remove it from the pool; the next RotatePool does.
package credentials
