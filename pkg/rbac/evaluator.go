package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// Defaults for EvaluatorConfig
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheSize       = 10000
	DefaultEmergencyExpiry = time.Hour
)

// BusinessHours is the daily window time-restricted roles may work in.
// StartHour is inclusive and EndHour exclusive; a window with StartHour
// greater than EndHour wraps past midnight.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// DefaultBusinessHours returns 07:00-19:00 UTC
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{StartHour: 7, EndHour: 19, Location: time.UTC}
}

// Validate checks the hour bounds
func (b BusinessHours) Validate() error {
	if b.StartHour < 0 || b.StartHour > 23 || b.EndHour < 0 || b.EndHour > 24 {
		return fmt.Errorf("business hours out of range: %d-%d", b.StartHour, b.EndHour)
	}
	if b.StartHour == b.EndHour {
		return fmt.Errorf("business hours window is empty: %d-%d", b.StartHour, b.EndHour)
	}
	return nil
}

// Contains reports whether t falls inside the window
func (b BusinessHours) Contains(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	hour := t.In(loc).Hour()
	if b.StartHour < b.EndHour {
		return hour >= b.StartHour && hour < b.EndHour
	}
	return hour >= b.StartHour || hour < b.EndHour
}

// EvaluatorConfig configures an Evaluator
type EvaluatorConfig struct {
	Roles           *Roles
	BusinessHours   BusinessHours
	CacheTTL        time.Duration
	CacheSize       int
	EmergencyExpiry time.Duration
	Events          audit.Logger
	Logger          logrus.FieldLogger

	// OnCacheLookup is called with the result of every cache lookup
	OnCacheLookup func(hit bool)
	// Now overrides the clock
	Now func() time.Time
}

// Evaluator decides whether a role may perform an action on a resource
type Evaluator struct {
	roles           *Roles
	hours           BusinessHours
	cache           *lru.LRU[string, *Decision]
	emergencyExpiry time.Duration
	events          audit.Logger
	logger          logrus.FieldLogger
	onCacheLookup   func(hit bool)
	now             func() time.Time
}

// NewEvaluator creates an evaluator. A zero CacheTTL disables caching.
func NewEvaluator(config EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		roles:           config.Roles,
		hours:           config.BusinessHours,
		emergencyExpiry: config.EmergencyExpiry,
		events:          config.Events,
		logger:          config.Logger,
		onCacheLookup:   config.OnCacheLookup,
		now:             config.Now,
	}
	if e.roles == nil {
		e.roles = DefaultRoles()
	}
	if e.hours == (BusinessHours{}) {
		e.hours = DefaultBusinessHours()
	}
	if e.emergencyExpiry <= 0 {
		e.emergencyExpiry = DefaultEmergencyExpiry
	}
	if e.events == nil {
		e.events = audit.NoOp()
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if config.CacheTTL > 0 {
		size := config.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		e.cache = lru.NewLRU[string, *Decision](size, nil, config.CacheTTL)
	}
	return e
}

// Roles returns the role table in use
func (e *Evaluator) Roles() *Roles {
	return e.roles
}

// Evaluate returns the decision for req and records it in the audit log
func (e *Evaluator) Evaluate(ctx context.Context, req Request) *Decision {
	key, cacheable := e.cacheKey(req)
	if cacheable {
		cached, hit := e.cache.Get(key)
		if e.onCacheLookup != nil {
			e.onCacheLookup(hit)
		}
		if hit {
			d := cached.clone()
			d.Cached = true
			e.record(ctx, req, d)
			return d
		}
	}

	d := e.evaluate(req)
	if cacheable && d.Unconditional() {
		e.cache.Add(key, d.clone())
	}
	e.record(ctx, req, d)
	return d
}

// Enforce evaluates req and returns a permission_denied error when not granted
func (e *Evaluator) Enforce(ctx context.Context, req Request) (*Decision, error) {
	d := e.Evaluate(ctx, req)
	if !d.Granted {
		return d, auth.PermissionDenied(d.Reason)
	}
	return d, nil
}

// Purge drops every cached decision
func (e *Evaluator) Purge() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// cacheKey omits the resource instance, so requests naming a target owner or
// clinic are never served from or stored in the cache.
func (e *Evaluator) cacheKey(req Request) (string, bool) {
	if e.cache == nil || req.TargetOwnerID != "" || req.TargetClinicID != "" {
		return "", false
	}
	clinic := req.ClinicID
	if clinic == "" {
		clinic = "global"
	}
	return fmt.Sprintf("%s|%s|%s|%s", req.Subject, req.Role, req.Permission(), clinic), true
}

func (e *Evaluator) evaluate(req Request) *Decision {
	perm := req.Permission()

	def, ok := e.roles.Lookup(req.Role)
	if !ok {
		return deny(fmt.Sprintf("unknown role %q", req.Role), audit.LevelCritical)
	}

	if !def.HasPermission(perm) {
		return deny(fmt.Sprintf("role %s lacks permission %s", def.Role, perm), audit.LevelMedium)
	}

	if def.Restrictions.ClinicScope {
		if req.ClinicID == "" {
			return deny("clinic context required", audit.LevelHigh)
		}
		if req.TargetClinicID != "" && req.TargetClinicID != req.ClinicID {
			return deny(fmt.Sprintf("resource belongs to clinic %s, not %s", req.TargetClinicID, req.ClinicID), audit.LevelHigh)
		}
	}

	ownershipChecked := def.Restrictions.OwnerScope || req.RequireOwnership
	if ownershipChecked && !def.OwnershipExempt && req.TargetOwnerID != "" && req.TargetOwnerID != req.Subject {
		return deny("ownership mismatch: caller does not own the target resource", audit.LevelHigh)
	}

	d := &Decision{
		Granted:    true,
		Reason:     fmt.Sprintf("granted by role %s", def.Role),
		AuditLevel: baseLevel(perm.Action),
	}

	if def.Restrictions.TimeRestricted && !e.hours.Contains(e.now()) {
		if !perm.IsEmergency() && !def.Unrestricted {
			return deny("outside permitted hours", audit.LevelMedium)
		}
		d.Conditions = append(d.Conditions, ConditionAfterHours)
		d.AuditLevel = audit.LevelHigh
	}

	if perm.IsEmergency() {
		d.Conditions = append(d.Conditions, ConditionEmergencyAccess)
		d.RequiresApproval = !def.EmergencyTrusted
		d.AuditLevel = audit.LevelCritical
		expires := e.now().Add(e.emergencyExpiry)
		d.Expiration = &expires
		d.Reason = fmt.Sprintf("emergency access granted to role %s", def.Role)
	}

	return d
}

func deny(reason string, level audit.Level) *Decision {
	return &Decision{Granted: false, Reason: reason, AuditLevel: level}
}

func baseLevel(action Action) audit.Level {
	switch action {
	case ActionRead, ActionList:
		return audit.LevelLow
	default:
		return audit.LevelMedium
	}
}

func (e *Evaluator) record(ctx context.Context, req Request, d *Decision) {
	details := map[string]interface{}{
		"role":       req.Role,
		"permission": req.Permission().String(),
		"granted":    d.Granted,
		"reason":     d.Reason,
		"cached":     d.Cached,
	}
	if req.ClinicID != "" {
		details["clinicId"] = req.ClinicID
	}
	if req.TargetResourceID != "" {
		details["resourceId"] = req.TargetResourceID
	}
	if req.TargetOwnerID != "" {
		details["ownerId"] = req.TargetOwnerID
	}
	if len(d.Conditions) > 0 {
		details["conditions"] = d.Conditions
	}
	if d.RequiresApproval {
		details["requiresApproval"] = true
	}

	event := audit.NewEvent(ctx, audit.EventTypePermissionDecision, req.Subject, d.AuditLevel, details)
	if err := e.events.Record(ctx, event); err != nil {
		e.logger.WithError(err).WithField("subject", req.Subject).Warn("Failed to record permission decision")
	}
}
