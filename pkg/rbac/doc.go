// Package rbac evaluates role-based permissions for clinic staff and patients.
//
// # Roles
//
// Six built-in roles form a strict hierarchy, most privileged first:
//
//	SUPER_ADMIN   (1) - every permission, no clinic scope
//	CLINIC_ADMIN  (2) - manages one clinic, its staff and patients
//	DOCTOR        (3) - clinical access, ownership-scoped
//	NURSE         (4) - clinical read/update during business hours
//	RECEPTIONIST  (5) - scheduling during business hours
//	PATIENT       (6) - own records and appointments only
//
// Role definitions can be replaced from a YAML file with LoadRoles. A role may
// assign only roles strictly below it; SUPER_ADMIN may assign any role.
//
// # Permissions
//
// A permission is written resource:action, e.g. "patients:read". A role holding
// "*" has every permission and one holding "patients:*" has every action on
// patients. Emergency permissions use the emergency resource.
//
// # Evaluation
//
// Evaluator.Evaluate applies, in order:
//
//  1. Unknown role: denied, audit level critical.
//  2. Missing permission: denied, audit level medium.
//  3. Role restrictions: clinic scope, ownership and business hours.
//  4. Emergency permissions: granted, flagged for approval unless the role is
//     trusted, audit level critical.
//
// Unconditional grants are cached for five minutes keyed by subject, role,
// permission and clinic. Denials, conditional grants and ownership-dependent
// requests are never cached. Every decision is written to the audit log.
package rbac
