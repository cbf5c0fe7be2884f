package clinics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDirectory is a mock implementation of Directory for testing
type mockDirectory struct {
	members   map[string][]string // subject -> clinic ids
	locations map[string][]string // clinic id -> permitted locations
	err       error
	calls     int
}

func (m *mockDirectory) ValidateClinicAccess(ctx context.Context, subject, clinicID string) (*AccessResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, id := range m.members[subject] {
		if id == clinicID {
			return &AccessResult{
				Success:     true,
				Clinic:      &ClinicContext{ClinicID: id, ClinicName: "Clinic " + id, IsValid: true},
				LocationIDs: m.locations[id],
			}, nil
		}
	}
	return &AccessResult{Success: false, Error: ErrNotMember.Error()}, nil
}

func (m *mockDirectory) LookupClinic(ctx context.Context, clinicID string) (*ClinicContext, error) {
	switch clinicID {
	case "c-missing":
		return nil, fmt.Errorf("clinic %s: %w", clinicID, ErrClinicNotFound)
	case "c-down":
		return nil, errors.New("connection refused")
	}
	return &ClinicContext{ClinicID: clinicID, IsValid: true}, nil
}

// withRoute runs r through a mux router so route variables are populated
func withRoute(t *testing.T, pattern string, r *http.Request, fn func(*http.Request)) {
	t.Helper()
	router := mux.NewRouter()
	called := false
	router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		called = true
		fn(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), r)
	require.True(t, called, "route %s did not match", pattern)
}

func TestExtractClinicID_Priority(t *testing.T) {
	claims := &auth.Claims{ClinicID: "from-token"}

	tests := []struct {
		name       string
		build      func() *http.Request
		claims     *auth.Claims
		wantID     string
		wantSource Source
	}{
		{
			name: "header beats everything",
			build: func() *http.Request {
				r := httptest.NewRequest("POST", "/clinics/from-route/patients?clinicId=from-query", strings.NewReader(`{"clinicId":"from-body"}`))
				r.Header.Set("Content-Type", "application/json")
				r.Header.Set("X-Clinic-ID", "from-header")
				return r
			},
			claims:     claims,
			wantID:     "from-header",
			wantSource: SourceHeader,
		},
		{
			name: "alternate header",
			build: func() *http.Request {
				r := httptest.NewRequest("GET", "/clinics/from-route/patients", nil)
				r.Header.Set("Clinic-ID", "alt-header")
				return r
			},
			wantID:     "alt-header",
			wantSource: SourceHeader,
		},
		{
			name: "query beats token",
			build: func() *http.Request {
				return httptest.NewRequest("GET", "/clinics/from-route/patients?clinic_id=from-query", nil)
			},
			claims:     claims,
			wantID:     "from-query",
			wantSource: SourceQuery,
		},
		{
			name: "token beats route",
			build: func() *http.Request {
				return httptest.NewRequest("GET", "/clinics/from-route/patients", nil)
			},
			claims:     claims,
			wantID:     "from-token",
			wantSource: SourceToken,
		},
		{
			name: "route beats body",
			build: func() *http.Request {
				r := httptest.NewRequest("POST", "/clinics/from-route/patients", strings.NewReader(`{"clinicId":"from-body"}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantID:     "from-route",
			wantSource: SourceRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRoute(t, "/clinics/{clinicId}/patients", tt.build(), func(r *http.Request) {
				id, source := ExtractClinicID(r, tt.claims)
				assert.Equal(t, tt.wantID, id)
				assert.Equal(t, tt.wantSource, source)
			})
		})
	}
}

func TestExtractClinicID_BodyRestored(t *testing.T) {
	payload := `{"clinic_id":"from-body","name":"Jane"}`
	r := httptest.NewRequest("POST", "/patients", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	id, source := ExtractClinicID(r, nil)
	assert.Equal(t, "from-body", id)
	assert.Equal(t, SourceBody, source)

	// location lookup peeks the body a second time
	_, _ = ExtractLocationID(r, nil)

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestExtractClinicID_IgnoresNonJSONBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/patients", strings.NewReader("clinicId=c1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	id, source := ExtractClinicID(r, nil)
	assert.Empty(t, id)
	assert.Equal(t, SourceNone, source)
}

func TestExtractClinicID_NumericBodyValue(t *testing.T) {
	r := httptest.NewRequest("POST", "/patients", strings.NewReader(`{"clinicId":42}`))
	r.Header.Set("Content-Type", "application/json")

	id, _ := ExtractClinicID(r, nil)
	assert.Equal(t, "42", id)
}

func TestResolver_Resolve(t *testing.T) {
	directory := &mockDirectory{
		members:   map[string][]string{"u1": {"c1", "c2"}},
		locations: map[string][]string{"c2": {"loc-1"}},
	}
	resolver := NewResolver(directory, nil, nil, "SUPER_ADMIN")
	doctor := &auth.Identity{Subject: "u1", Role: "DOCTOR"}
	ctx := context.Background()

	t.Run("member", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/patients", nil)
		r.Header.Set("X-Clinic-ID", "c1")
		r.Header.Set("X-Location-ID", "loc-9")

		clinic, err := resolver.Resolve(ctx, r, doctor, nil)
		require.NoError(t, err)
		assert.Equal(t, "c1", clinic.ClinicID)
		assert.Equal(t, "loc-9", clinic.LocationID)
		assert.True(t, clinic.IsValid)
	})

	t.Run("missing tenant", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, httptest.NewRequest("GET", "/patients", nil), doctor, nil)
		assert.True(t, auth.IsKind(err, auth.KindTenantRequired))
	})

	t.Run("not a member", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/patients?clinicId=c9", nil)
		_, err := resolver.Resolve(ctx, r, doctor, nil)
		assert.True(t, auth.IsKind(err, auth.KindTenantAccessDenied))
	})

	t.Run("location restriction", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/patients?clinicId=c2&locationId=loc-2", nil)
		_, err := resolver.Resolve(ctx, r, doctor, nil)
		assert.True(t, auth.IsKind(err, auth.KindTenantAccessDenied))

		r = httptest.NewRequest("GET", "/patients?clinicId=c2&locationId=loc-1", nil)
		clinic, err := resolver.Resolve(ctx, r, doctor, nil)
		require.NoError(t, err)
		assert.Equal(t, "loc-1", clinic.LocationID)
	})

	t.Run("token claim used", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/patients", nil)
		clinic, err := resolver.Resolve(ctx, r, doctor, &auth.Claims{ClinicID: "c2"})
		require.NoError(t, err)
		assert.Equal(t, "c2", clinic.ClinicID)
	})

	t.Run("exempt role skips membership", func(t *testing.T) {
		calls := directory.calls
		admin := &auth.Identity{Subject: "root", Role: "SUPER_ADMIN"}

		r := httptest.NewRequest("GET", "/patients?clinicId=c77", nil)
		clinic, err := resolver.Resolve(ctx, r, admin, nil)
		require.NoError(t, err)
		assert.Equal(t, "c77", clinic.ClinicID)
		assert.Equal(t, calls, directory.calls)

		r = httptest.NewRequest("GET", "/patients?clinicId=c-missing", nil)
		_, err = resolver.Resolve(ctx, r, admin, nil)
		assert.True(t, auth.IsKind(err, auth.KindTenantAccessDenied))

		r = httptest.NewRequest("GET", "/patients?clinicId=c-down", nil)
		_, err = resolver.Resolve(ctx, r, admin, nil)
		assert.True(t, auth.IsKind(err, auth.KindServiceUnavailable))
	})

	t.Run("route clinic must match", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/clinics/c9/patients", nil)
		r.Header.Set("X-Clinic-ID", "c1")
		withRoute(t, "/clinics/{clinicId}/patients", r, func(r *http.Request) {
			_, err := resolver.Resolve(ctx, r, doctor, nil)
			assert.True(t, auth.IsKind(err, auth.KindTenantAccessDenied))
		})

		r = httptest.NewRequest("GET", "/clinics/c2/patients", nil)
		withRoute(t, "/clinics/{clinicId}/patients", r, func(r *http.Request) {
			_, err := resolver.Resolve(ctx, r, doctor, &auth.Claims{ClinicID: "c1"})
			assert.True(t, auth.IsKind(err, auth.KindTenantAccessDenied))
		})

		r = httptest.NewRequest("GET", "/clinics/c1/patients", nil)
		r.Header.Set("X-Clinic-ID", "c1")
		withRoute(t, "/clinics/{clinicId}/patients", r, func(r *http.Request) {
			clinic, err := resolver.Resolve(ctx, r, doctor, nil)
			require.NoError(t, err)
			assert.Equal(t, "c1", clinic.ClinicID)
		})
	})
}

func TestRouteClinicID(t *testing.T) {
	withRoute(t, "/clinics/{clinic_id}", httptest.NewRequest("GET", "/clinics/c4", nil), func(r *http.Request) {
		assert.Equal(t, "c4", RouteClinicID(r))
	})
	assert.Empty(t, RouteClinicID(httptest.NewRequest("GET", "/patients", nil)))
}

func TestResolver_DirectoryOutage(t *testing.T) {
	resolver := NewResolver(&mockDirectory{err: errors.New("db down")}, nil, nil)
	r := httptest.NewRequest("GET", "/patients", nil)
	r.Header.Set("X-Clinic-ID", "c1")

	_, err := resolver.Resolve(context.Background(), r, &auth.Identity{Subject: "u1"}, nil)
	assert.True(t, auth.IsKind(err, auth.KindServiceUnavailable))
}

func TestClinicContextRoundTrip(t *testing.T) {
	ctx := WithClinic(context.Background(), &ClinicContext{ClinicID: "c1"})
	clinic, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "c1", clinic.ClinicID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
