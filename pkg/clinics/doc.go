// Package clinics binds each request to exactly one tenant (clinic) and verifies
// the caller belongs to it.
//
// # Resolution order
//
// The clinic id is taken from the first non-empty source:
//
//  1. X-Clinic-ID header (or Clinic-ID)
//  2. clinicId / clinic_id query parameter
//  3. clinicId claim of the verified token
//  4. clinicId / clinic_id route parameter
//  5. clinicId / clinic_id field of a JSON request body
//
// Sources are never merged. The location id is resolved the same way from
// X-Location-ID, locationId / location_id and the locationId claim, and is optional.
//
// # Membership
//
// The resolved id is checked against the caller's memberships through a Directory.
// PostgresDirectory reads the clinic_members table. Roles listed as exempt
// (SUPER_ADMIN by default) only need the clinic to exist.
package clinics
