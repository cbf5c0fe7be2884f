package main

import (
	"net/http"
	"time"

	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/clinics"
	"github.com/carepoint/gatekeeper/pkg/httputil"
	"github.com/carepoint/gatekeeper/pkg/policy"
	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/carepoint/gatekeeper/pkg/session"
	"github.com/gorilla/mux"
)

// demoRoute is a resource endpoint guarded by the pipeline. A non-nil extra
// permission is enforced by the handler on top of the route policy.
type demoRoute struct {
	name   string
	method string
	path   string
	extra  *rbac.Permission
}

var demoRoutes = []demoRoute{
	{"public.status", http.MethodGet, "/public/status", nil},
	{"me", http.MethodGet, "/me", nil},
	{"patients.list", http.MethodGet, "/clinics/{clinicId}/patients", nil},
	{"patients.create", http.MethodPost, "/clinics/{clinicId}/patients", nil},
	{"patients.get", http.MethodGet, "/clinics/{clinicId}/patients/{patientId}", nil},
	{"patients.update", http.MethodPut, "/clinics/{clinicId}/patients/{patientId}", nil},
	{"records.list", http.MethodGet, "/clinics/{clinicId}/patients/{patientId}/records", nil},
	{"appointments.list", http.MethodGet, "/clinics/{clinicId}/appointments", nil},
	{"appointments.create", http.MethodPost, "/clinics/{clinicId}/appointments", nil},
	{"prescriptions.create", http.MethodPost, "/clinics/{clinicId}/prescriptions", nil},
	{"emergency.access", http.MethodPost, "/clinics/{clinicId}/emergency/access", nil},
	{"settings.get", http.MethodGet, "/clinics/{clinicId}/settings", nil},
	{"audit.list", http.MethodGet, "/clinics/{clinicId}/audit-logs", nil},
	{"reports.billing", http.MethodGet, "/clinics/{clinicId}/reports/billing",
		&rbac.Permission{Resource: rbac.ResourceBilling, Action: rbac.ActionRead}},
}

// defaultPolicies is the route table used when no policy file is configured.
// "me" has no entry, so it only requires an authenticated caller.
func defaultPolicies() *policy.Table {
	clinicStaff := []string{rbac.RoleClinicAdmin, rbac.RoleDoctor, rbac.RoleNurse, rbac.RoleReceptionist}

	return policy.NewTable().
		Add("public.status", policy.Route{Public: true}).
		Add("patients.list", policy.Route{
			AllowedRoles: clinicStaff,
			Permission:   &policy.RequiredPermission{Resource: rbac.ResourcePatients, Action: rbac.ActionList},
		}).
		Add("patients.create", policy.Route{
			AllowedRoles: []string{rbac.RoleClinicAdmin, rbac.RoleReceptionist},
			Permission:   &policy.RequiredPermission{Resource: rbac.ResourcePatients, Action: rbac.ActionCreate},
		}).
		Add("patients.get", policy.Route{
			Permission: &policy.RequiredPermission{
				Resource:        rbac.ResourcePatients,
				Action:          rbac.ActionRead,
				ResourceIDParam: "patientId",
			},
		}).
		Add("patients.update", policy.Route{
			Permission: &policy.RequiredPermission{
				Resource:        rbac.ResourcePatients,
				Action:          rbac.ActionUpdate,
				ResourceIDParam: "patientId",
			},
		}).
		Add("records.list", policy.Route{
			AllowedRoles: []string{rbac.RoleClinicAdmin, rbac.RoleDoctor, rbac.RoleNurse, rbac.RolePatient},
			Permission: &policy.RequiredPermission{
				Resource:        rbac.ResourceMedicalRecords,
				Action:          rbac.ActionRead,
				ResourceIDParam: "patientId",
			},
		}).
		Add("appointments.list", policy.Route{
			Permission: &policy.RequiredPermission{Resource: rbac.ResourceAppointments, Action: rbac.ActionList},
		}).
		Add("appointments.create", policy.Route{
			Permission: &policy.RequiredPermission{Resource: rbac.ResourceAppointments, Action: rbac.ActionCreate},
		}).
		Add("prescriptions.create", policy.Route{
			AllowedRoles: []string{rbac.RoleDoctor},
			Permission:   &policy.RequiredPermission{Resource: rbac.ResourcePrescriptions, Action: rbac.ActionCreate},
		}).
		Add("emergency.access", policy.Route{
			Permission: &policy.RequiredPermission{Resource: rbac.ResourceEmergency, Action: rbac.ActionAccess},
		}).
		Add("settings.get", policy.Route{
			AllowedRoles: []string{rbac.RoleSuperAdmin, rbac.RoleClinicAdmin},
			Permission:   &policy.RequiredPermission{Resource: rbac.ResourceSettings, Action: rbac.ActionRead},
		}).
		Add("audit.list", policy.Route{
			OriginFiltered: true,
			AllowedRoles:   []string{rbac.RoleSuperAdmin, rbac.RoleClinicAdmin},
			Permission:     &policy.RequiredPermission{Resource: rbac.ResourceAuditLogs, Action: rbac.ActionRead},
		}).
		Add("reports.billing", policy.Route{
			AllowedRoles: []string{rbac.RoleSuperAdmin, rbac.RoleClinicAdmin},
			Permission:   &policy.RequiredPermission{Resource: rbac.ResourceReports, Action: rbac.ActionRead},
		})
}

// authorizationView echoes what the pipeline bound to the request
type authorizationView struct {
	Route            string     `json:"route"`
	Subject          string     `json:"subject,omitempty"`
	Role             string     `json:"role,omitempty"`
	SessionID        string     `json:"sessionId,omitempty"`
	ClinicID         string     `json:"clinicId,omitempty"`
	LocationID       string     `json:"locationId,omitempty"`
	Conditions       []string   `json:"conditions,omitempty"`
	RequiresApproval bool       `json:"requiresApproval,omitempty"`
	Expiration       *time.Time `json:"expiration,omitempty"`
}

func demoHandler(w http.ResponseWriter, r *http.Request) {
	view := authorizationView{}
	if route := mux.CurrentRoute(r); route != nil {
		view.Route = route.GetName()
	}

	ctx := r.Context()
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		view.Subject = identity.Subject
		view.Role = identity.Role
	}
	if record, ok := session.FromContext(ctx); ok {
		view.SessionID = record.SessionID
	}
	if clinic, ok := clinics.FromContext(ctx); ok {
		view.ClinicID = clinic.ClinicID
		view.LocationID = clinic.LocationID
	}
	if decision, ok := rbac.DecisionFromContext(ctx); ok {
		view.Conditions = decision.Conditions
		view.RequiresApproval = decision.RequiresApproval
		view.Expiration = decision.Expiration
	}

	httputil.WriteSuccess(w, view)
}

func registerDemoRoutes(router *mux.Router, permissions *rbac.PermissionMiddleware) {
	for _, route := range demoRoutes {
		var handler http.Handler = http.HandlerFunc(demoHandler)
		if route.extra != nil {
			handler = permissions.RequirePermission(route.extra.Resource, route.extra.Action)(handler)
		}
		router.Handle(route.path, handler).Methods(route.method).Name(route.name)
	}
}
