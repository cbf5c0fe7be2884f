package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/clinics"
	"github.com/carepoint/gatekeeper/pkg/httputil"
	"github.com/carepoint/gatekeeper/pkg/lockout"
	"github.com/carepoint/gatekeeper/pkg/observability"
	"github.com/carepoint/gatekeeper/pkg/policy"
	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/carepoint/gatekeeper/pkg/session"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names used in metrics, spans and logs
const (
	StageOrigin     = "origin"
	StageLockout    = "lockout"
	StageVerify     = "verify"
	StageSession    = "session"
	StageLimit      = "session_limit"
	StageTenant     = "tenant"
	StageRole       = "role"
	StagePermission = "permission"
)

// Request headers read by the pipeline
const (
	SessionIDHeader   = "X-Session-Id"
	FingerprintHeader = "X-Device-Fingerprint"
)

// OutcomeAllowed labels requests that passed every stage
const OutcomeAllowed = "allowed"

// PipelineConfig wires the pipeline's stages
type PipelineConfig struct {
	Policies  *policy.Table
	Origin    *OriginFilter
	Lockouts  *lockout.Tracker
	Verifier  *auth.Verifier
	Sessions  *session.Validator
	Limiter   *session.Limiter
	Tenants   *clinics.Resolver
	Evaluator *rbac.Evaluator

	// Owners resolves target owners for ownership-checked routes; defaults to SelfOwnedResolver
	Owners  rbac.OwnerResolver
	Events  audit.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Logger  logrus.FieldLogger
}

// Pipeline runs every authorization stage, in order, in front of a handler
type Pipeline struct {
	policies  *policy.Table
	origin    *OriginFilter
	lockouts  *lockout.Tracker
	verifier  *auth.Verifier
	sessions  *session.Validator
	limiter   *session.Limiter
	tenants   *clinics.Resolver
	evaluator *rbac.Evaluator
	owners    rbac.OwnerResolver
	events    audit.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    logrus.FieldLogger
}

// NewPipeline checks that every required stage is present
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Policies == nil:
		return nil, errors.New("pipeline: route policies are required")
	case cfg.Origin == nil:
		return nil, errors.New("pipeline: origin filter is required")
	case cfg.Lockouts == nil:
		return nil, errors.New("pipeline: lockout tracker is required")
	case cfg.Verifier == nil:
		return nil, errors.New("pipeline: token verifier is required")
	case cfg.Sessions == nil:
		return nil, errors.New("pipeline: session validator is required")
	case cfg.Limiter == nil:
		return nil, errors.New("pipeline: session limiter is required")
	case cfg.Tenants == nil:
		return nil, errors.New("pipeline: tenant resolver is required")
	case cfg.Evaluator == nil:
		return nil, errors.New("pipeline: permission evaluator is required")
	}

	p := &Pipeline{
		policies:  cfg.Policies,
		origin:    cfg.Origin,
		lockouts:  cfg.Lockouts,
		verifier:  cfg.Verifier,
		sessions:  cfg.Sessions,
		limiter:   cfg.Limiter,
		tenants:   cfg.Tenants,
		evaluator: cfg.Evaluator,
		owners:    cfg.Owners,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger,
	}
	if p.owners == nil {
		p.owners = rbac.SelfOwnedResolver()
	}
	if p.events == nil {
		p.events = audit.NoOp()
	}
	if p.tracer == nil {
		p.tracer = observability.Tracer()
	}
	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}
	return p, nil
}

// Middleware authorizes each request before calling next. It must run after
// route matching, e.g. via mux.Router.Use, so the route policy can be found.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routeName, route := p.policies.ForRequest(r)

		ctx, span := p.tracer.Start(r.Context(), "gatekeeper.authorize",
			trace.WithAttributes(attribute.String("gatekeeper.route", routeName)))
		defer span.End()

		authorized, err := p.authorize(r.WithContext(ctx), route)
		if err != nil {
			kind := errorKind(err)
			span.SetStatus(codes.Error, kind)
			observability.WithTraceContext(ctx, p.logger).WithFields(logrus.Fields{
				"route": routeName,
				"error": kind,
			}).Debug("request denied")
			p.metrics.RecordDecision(routeName, kind)
			httputil.WriteAuthError(w, err)
			return
		}

		p.metrics.RecordDecision(routeName, OutcomeAllowed)
		next.ServeHTTP(w, authorized)
	})
}

func (p *Pipeline) authorize(r *http.Request, route policy.Route) (*http.Request, error) {
	ctx := r.Context()

	if route.OriginFiltered {
		if err := p.stage(ctx, StageOrigin, func(ctx context.Context) error {
			return p.origin.Check(ctx, r)
		}); err != nil {
			return nil, err
		}
	}

	if route.Public {
		return r, nil
	}

	clientIP := ""
	ipIdentity := ""
	if ip, ok := ClientIP(r); ok {
		clientIP = ip.String()
		ipIdentity = lockout.IPIdentity(clientIP)
	}

	if ipIdentity != "" {
		if err := p.stage(ctx, StageLockout, func(ctx context.Context) error {
			return p.lockouts.Check(ctx, ipIdentity)
		}); err != nil {
			p.recordLocked(ctx, ipIdentity)
			return nil, err
		}
	}

	raw, hasToken := auth.BearerToken(r)
	var claims *auth.Claims
	if err := p.stage(ctx, StageVerify, func(ctx context.Context) error {
		if !hasToken {
			return auth.NewError(auth.KindInvalidToken, "missing bearer token")
		}
		var err error
		claims, err = p.verifier.Verify(ctx, raw)
		return err
	}); err != nil {
		if hasToken {
			p.recordFailure(ctx, err, ipIdentity)
		}
		return nil, err
	}

	identity := claims.Identity()
	accountIdentity := lockout.AccountIdentity(identity.Subject)
	if err := p.stage(ctx, StageLockout, func(ctx context.Context) error {
		return p.lockouts.Check(ctx, accountIdentity)
	}); err != nil {
		p.recordLocked(ctx, accountIdentity)
		return nil, err
	}

	var record *session.Record
	if err := p.stage(ctx, StageSession, func(ctx context.Context) error {
		var err error
		record, err = p.sessions.Validate(ctx, session.Input{
			Identity:          identity,
			RawToken:          raw,
			SessionHeader:     r.Header.Get(SessionIDHeader),
			UserAgent:         r.UserAgent(),
			DeviceFingerprint: r.Header.Get(FingerprintHeader),
			IPAddress:         clientIP,
		})
		return err
	}); err != nil {
		p.recordFailure(ctx, err, ipIdentity, accountIdentity)
		return nil, err
	}

	if err := p.stage(ctx, StageLimit, func(ctx context.Context) error {
		return p.limiter.Admit(ctx, identity.Subject, record.SessionID)
	}); err != nil {
		return nil, err
	}

	p.clearLockouts(ctx, ipIdentity, accountIdentity)

	ctx = auth.WithIdentity(ctx, identity, claims)
	ctx = session.WithRecord(ctx, record)
	r = r.WithContext(ctx)
	log := observability.LoggerFromContext(ctx).WithFields(logrus.Fields{
		"subject":    identity.Subject,
		"session_id": record.SessionID,
	})

	var clinic *clinics.ClinicContext
	if err := p.stage(ctx, StageTenant, func(ctx context.Context) error {
		var err error
		clinic, err = p.tenants.Resolve(ctx, r, identity, claims)
		return err
	}); err != nil {
		return nil, err
	}
	ctx = clinics.WithClinic(ctx, clinic)

	if err := p.stage(ctx, StageRole, func(ctx context.Context) error {
		return rbac.CheckRole(identity.Role, route.AllowedRoles)
	}); err != nil {
		log.WithFields(logrus.Fields{
			"role":          identity.Role,
			"allowed_roles": route.AllowedRoles,
		}).Warn("role not allowed on route")
		p.emit(ctx, audit.EventTypeRoleDenied, accountIdentity, audit.LevelMedium, map[string]interface{}{
			"role":         identity.Role,
			"allowedRoles": route.AllowedRoles,
			"path":         r.URL.Path,
		})
		return nil, err
	}

	if required := route.Permission; required != nil {
		req := rbac.Request{
			Subject:          identity.Subject,
			Role:             identity.Role,
			ClinicID:         clinic.ClinicID,
			TargetClinicID:   clinics.RouteClinicID(r),
			Resource:         required.Resource,
			Action:           required.Action,
			RequireOwnership: required.RequireOwnership,
		}
		if required.ResourceIDParam != "" {
			req.TargetResourceID = mux.Vars(r)[required.ResourceIDParam]
		}
		if req.TargetResourceID != "" {
			owner, err := p.owners.ResolveOwner(ctx, r, required.Resource, req.TargetResourceID)
			if err != nil {
				log.WithError(err).Error("resource owner lookup failed")
				return nil, auth.WrapError(auth.KindServiceUnavailable, "resource owner could not be determined", err)
			}
			req.TargetOwnerID = owner
		}

		var decision *rbac.Decision
		if err := p.stage(ctx, StagePermission, func(ctx context.Context) error {
			var err error
			decision, err = p.evaluator.Enforce(ctx, req)
			return err
		}); err != nil {
			log.WithFields(logrus.Fields{
				"permission": required.Permission().String(),
				"reason":     decision.Reason,
			}).Warn("permission denied")
			return nil, err
		}
		ctx = rbac.WithDecision(ctx, decision)
	}

	return r.WithContext(ctx), nil
}

// stage times fn, wraps it in a span and counts its failures
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "gatekeeper."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStage(name, time.Since(start))

	if err != nil {
		kind := errorKind(err)
		p.metrics.RecordStageFailure(name, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	return err
}

// recordFailure feeds verification and session failures into the lockout counters
func (p *Pipeline) recordFailure(ctx context.Context, err error, identities ...string) {
	authErr, ok := auth.AsError(err)
	if !ok || !countsAsAttempt(authErr.Kind) {
		return
	}
	for _, identity := range identities {
		if identity == "" {
			continue
		}
		state, recErr := p.lockouts.RecordFailure(ctx, identity, string(authErr.Kind))
		if recErr != nil {
			p.logger.WithError(recErr).WithField("identity", identity).Error("failed to record authentication failure")
			continue
		}
		p.metrics.RecordFailedAttempt(state != nil)
	}
}

func countsAsAttempt(kind auth.Kind) bool {
	switch kind {
	case auth.KindInvalidToken, auth.KindTokenExpired, auth.KindTokenRevoked,
		auth.KindSessionMissing, auth.KindSessionInvalid:
		return true
	default:
		return false
	}
}

func (p *Pipeline) recordLocked(ctx context.Context, identity string) {
	p.emit(ctx, audit.EventTypeLockedAttempt, identity, audit.LevelHigh, nil)
}

func (p *Pipeline) clearLockouts(ctx context.Context, identities ...string) {
	for _, identity := range identities {
		if identity == "" {
			continue
		}
		if err := p.lockouts.Clear(ctx, identity); err != nil {
			p.logger.WithError(err).WithField("identity", identity).Warn("failed to clear lockout state")
		}
	}
}

func (p *Pipeline) emit(ctx context.Context, eventType audit.EventType, identity string, level audit.Level, details map[string]interface{}) {
	if err := p.events.Record(ctx, audit.NewEvent(ctx, eventType, identity, level, details)); err != nil {
		p.logger.WithError(err).WithField("event_type", eventType).Warn("failed to record security event")
	}
}

func errorKind(err error) string {
	if authErr, ok := auth.AsError(err); ok {
		return string(authErr.Kind)
	}
	return "internal_error"
}
