package clinics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// maxBodyPeek bounds how much of a request body is buffered to look for a tenant id
const maxBodyPeek = 1 << 20

// Source identifies where a tenant identifier was found
type Source string

const (
	SourceNone   Source = ""
	SourceHeader Source = "header"
	SourceQuery  Source = "query"
	SourceToken  Source = "token"
	SourceRoute  Source = "route"
	SourceBody   Source = "body"
)

type fieldNames struct {
	headers []string
	params  []string
	claim   func(*auth.Claims) string
}

var (
	clinicFields = fieldNames{
		headers: []string{"X-Clinic-ID", "Clinic-ID"},
		params:  []string{"clinicId", "clinic_id"},
		claim:   func(c *auth.Claims) string { return c.ClinicID },
	}
	locationFields = fieldNames{
		headers: []string{"X-Location-ID"},
		params:  []string{"locationId", "location_id"},
		claim:   func(c *auth.Claims) string { return c.LocationID },
	}
)

// ExtractClinicID finds the clinic id using the fixed source priority
func ExtractClinicID(r *http.Request, claims *auth.Claims) (string, Source) {
	return extract(r, claims, clinicFields)
}

// ExtractLocationID finds the optional location id using the same priority
func ExtractLocationID(r *http.Request, claims *auth.Claims) (string, Source) {
	return extract(r, claims, locationFields)
}

func extract(r *http.Request, claims *auth.Claims, f fieldNames) (string, Source) {
	for _, h := range f.headers {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v, SourceHeader
		}
	}

	query := r.URL.Query()
	for _, p := range f.params {
		if v := strings.TrimSpace(query.Get(p)); v != "" {
			return v, SourceQuery
		}
	}

	if claims != nil {
		if v := f.claim(claims); v != "" {
			return v, SourceToken
		}
	}

	vars := mux.Vars(r)
	for _, p := range f.params {
		if v := vars[p]; v != "" {
			return v, SourceRoute
		}
	}

	body := peekJSONBody(r)
	for _, p := range f.params {
		if v := bodyString(body[p]); v != "" {
			return v, SourceBody
		}
	}

	return "", SourceNone
}

// RouteClinicID returns the clinic id named in the matched route, if any
func RouteClinicID(r *http.Request) string {
	vars := mux.Vars(r)
	for _, p := range clinicFields.params {
		if v := vars[p]; v != "" {
			return v
		}
	}
	return ""
}

// peekJSONBody decodes a JSON object body and restores r.Body for the handler
func peekJSONBody(r *http.Request) map[string]interface{} {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}
	if err != nil || len(buf) > maxBodyPeek {
		return nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(buf, &body); err != nil {
		return nil
	}
	return body
}

func bodyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}

// Resolver extracts and validates the request tenant
type Resolver struct {
	directory   Directory
	events      audit.Logger
	logger      logrus.FieldLogger
	exemptRoles map[string]bool
}

// NewResolver creates a tenant resolver. Members of exemptRoles may enter any
// active clinic.
func NewResolver(directory Directory, events audit.Logger, logger logrus.FieldLogger, exemptRoles ...string) *Resolver {
	if events == nil {
		events = audit.NoOp()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	exempt := make(map[string]bool, len(exemptRoles))
	for _, role := range exemptRoles {
		exempt[role] = true
	}
	return &Resolver{
		directory:   directory,
		events:      events,
		logger:      logger,
		exemptRoles: exempt,
	}
}

// Resolve binds a clinic to the request. Every caller must supply one, and a
// clinic named in the route must match it. Resolve may replace r.Body with an
// equivalent reader, so callers must forward the same r.
func (res *Resolver) Resolve(ctx context.Context, r *http.Request, identity *auth.Identity, claims *auth.Claims) (*ClinicContext, error) {
	clinicID, source := ExtractClinicID(r, claims)
	if clinicID == "" {
		return nil, auth.NewError(auth.KindTenantRequired, "clinic id is required")
	}
	locationID, _ := ExtractLocationID(r, claims)

	log := res.logger.WithFields(logrus.Fields{
		"subject":   identity.Subject,
		"clinic_id": clinicID,
		"source":    source,
	})

	if target := RouteClinicID(r); target != "" && target != clinicID {
		res.deny(ctx, identity, clinicID, fmt.Sprintf("%s clinic does not match route clinic %s", source, target))
		return nil, auth.NewError(auth.KindTenantAccessDenied, "access to clinic denied")
	}

	if res.exemptRoles[identity.Role] {
		clinic, err := res.directory.LookupClinic(ctx, clinicID)
		if errors.Is(err, ErrClinicNotFound) {
			log.WithError(err).Warn("clinic not found for exempt role")
			return nil, auth.WrapError(auth.KindTenantAccessDenied, "clinic not found", err)
		}
		if err != nil {
			log.WithError(err).Error("clinic lookup failed")
			return nil, auth.WrapError(auth.KindServiceUnavailable, "clinic directory unavailable", err)
		}
		clinic.LocationID = locationID
		return clinic, nil
	}

	result, err := res.directory.ValidateClinicAccess(ctx, identity.Subject, clinicID)
	if err != nil {
		log.WithError(err).Error("clinic membership lookup failed")
		return nil, auth.WrapError(auth.KindServiceUnavailable, "clinic directory unavailable", err)
	}
	if !result.Success || result.Clinic == nil {
		res.deny(ctx, identity, clinicID, result.Error)
		return nil, auth.NewError(auth.KindTenantAccessDenied, "access to clinic denied")
	}

	if locationID != "" && len(result.LocationIDs) > 0 && !contains(result.LocationIDs, locationID) {
		res.deny(ctx, identity, clinicID, "location not permitted: "+locationID)
		return nil, auth.NewError(auth.KindTenantAccessDenied, "access to location denied")
	}

	clinic := *result.Clinic
	clinic.LocationID = locationID
	return &clinic, nil
}

func (res *Resolver) deny(ctx context.Context, identity *auth.Identity, clinicID, reason string) {
	res.logger.WithFields(logrus.Fields{
		"subject":   identity.Subject,
		"clinic_id": clinicID,
		"reason":    reason,
	}).Warn("clinic access denied")

	event := audit.NewEvent(ctx, audit.EventTypeTenantDenied, "user:"+identity.Subject, audit.LevelHigh, map[string]interface{}{
		"clinicId": clinicID,
		"reason":   reason,
	})
	if err := res.events.Record(ctx, event); err != nil {
		res.logger.WithError(err).Warn("failed to record security event")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
