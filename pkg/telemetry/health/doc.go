// Package health serves the liveness, readiness and version endpoints.
//
// Liveness (/health) answers as long as the process serves HTTP. Readiness
// (/ready) runs every registered check concurrently, each bounded by the
// checker's timeout, and answers 503 unless all of them pass. The gateway
// registers a check that fails while the credential pool holds no API key,
// so a load balancer stops routing to an instance that would answer every
// request with 401.
//
//	checker := health.New(2 * time.Second)
//	checker.Register("credential_pool", func(ctx context.Context) error {
//	    if store.Snapshot().Len() == 0 {
//	        return errors.New("no API keys in pool")
//	    }
//	    return nil
//	})
//	health.Register(mux, checker, health.VersionInfo{Version: version})
package health
