// Package middleware assembles the request authorization pipeline.
//
// Pipeline runs the stages in a fixed order and stops at the first failure:
//
//  1. origin filter (routes marked originFiltered only)
//  2. public routes return here
//  3. lockout check for the client IP
//  4. bearer token verification, then the account lockout check
//  5. session validation
//  6. concurrent-session admission
//  7. lockout counters cleared
//  8. clinic resolution
//  9. role gate
//  10. permission evaluation
//
// Failures in stages 4 and 5 count against the client IP, and against the
// account once the subject is known. The identity, session, clinic and
// permission decision are stored in the request context for handlers.
//
// Usage with gorilla/mux, so the route policy can be found by name:
//
//	router.Handle("/clinics/{clinicId}/patients", h).Name("patients.list")
//	router.Use(pipeline.Middleware)
//
// OriginFilter can also be used on its own:
//
//	filter, err := middleware.NewOriginFilter(cfg.OriginAllowList, cfg.IsProduction(), events, logger)
//	admin.Use(filter.Middleware)
package middleware
