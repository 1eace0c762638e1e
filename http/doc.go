// Package http puts SigV4 authentication in front of any downstream service.
//
// # Services
//
// A Service is a unit of request handling with a non-blocking readiness
// check. Services compose by wrapping:
//
//	upstream := http.Transport(nil, target)                 // proxy
//	guarded := http.CircuitBreaker(upstream, settings)      // trips on 5xx
//	authed, err := http.NewInterceptor(cfg, keys, guarded)  // SigV4
//	limited := http.RateLimit(authed, rate.NewLimiter(100, 200))
//	srv := &nethttp.Server{Handler: http.Handler(limited)}
//
// Handler answers 503 while the chain is not ready, 429 when rate limited
// and 502 when the downstream call fails.
//
// # Interceptor
//
// The Interceptor drains the request body into memory (see Drain), verifies
// the signature over the complete bytes and then calls the next service with
// the same bytes as a replayable body and the Principal in the request
// context:
//
//	func(w http.ResponseWriter, r *http.Request) {
//	    p := http.MustPrincipal(r.Context())
//	    ...
//	}
//
// Every failure produces the same 401 (FailureResponse). The reason is only
// logged and counted in Metrics.
//
// # Middleware
//
// AuthMiddleware does the same for a plain http.Handler, for routers that
// want authentication on a subset of routes:
//
//	router.Use(http.AuthMiddleware(auth)) // authenticated
//	router.Use(http.AuthMiddleware(nil))  // public access
package http
