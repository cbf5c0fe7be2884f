package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/httputil"
	"github.com/carepoint/gatekeeper/pkg/lockout"
	"github.com/sirupsen/logrus"
)

// OriginFilter admits requests from an allow-list of IPs and CIDR ranges
type OriginFilter struct {
	prefixes   []netip.Prefix
	production bool
	events     audit.Logger
	logger     logrus.FieldLogger
}

// NewOriginFilter parses allowList once. Entries are literal IPs or CIDRs.
// An empty list admits everything outside production and nothing in it.
func NewOriginFilter(allowList []string, production bool, events audit.Logger, logger logrus.FieldLogger) (*OriginFilter, error) {
	prefixes := make([]netip.Prefix, 0, len(allowList))
	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parseAllowEntry(entry)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	if events == nil {
		events = audit.NoOp()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OriginFilter{
		prefixes:   prefixes,
		production: production,
		events:     events,
		logger:     logger,
	}, nil
}

func parseAllowEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		if prefix.Addr().Is4In6() {
			if prefix.Bits() < 96 {
				return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: IPv4-mapped prefix must be at least /96", entry)
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid IP %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ClientIP resolves the caller's address from the connection, then X-Real-IP,
// then the first X-Forwarded-For hop. IPv4-mapped IPv6 addresses are unmapped.
func ClientIP(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if addr, ok := parseIP(host); ok {
		return addr, true
	}
	if addr, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return addr, true
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if addr, ok := parseIP(first); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func parseIP(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// Check returns an origin_denied error when the caller is not allowed
func (f *OriginFilter) Check(ctx context.Context, r *http.Request) error {
	if len(f.prefixes) == 0 {
		if f.production {
			f.deny(ctx, r, "", "origin allow-list is empty")
			return auth.NewError(auth.KindOriginDenied, "access denied")
		}
		return nil
	}

	ip, ok := ClientIP(r)
	if !ok {
		f.logger.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		}).Error("could not determine client IP for origin-filtered route, allowing request")
		return nil
	}

	for _, prefix := range f.prefixes {
		if prefix.Contains(ip) {
			return nil
		}
	}

	f.deny(ctx, r, ip.String(), "ip not in allow-list")
	return auth.NewError(auth.KindOriginDenied, "access denied")
}

func (f *OriginFilter) deny(ctx context.Context, r *http.Request, ip, reason string) {
	f.logger.WithFields(logrus.Fields{
		"client_ip": ip,
		"path":      r.URL.Path,
		"reason":    reason,
	}).Warn("origin denied")

	if ip == "" {
		ip = "unknown"
	}
	event := audit.NewEvent(ctx, audit.EventTypeOriginDenied, lockout.IPIdentity(ip), audit.LevelHigh, map[string]interface{}{
		"path":   r.URL.Path,
		"reason": reason,
	})
	if err := f.events.Record(ctx, event); err != nil {
		f.logger.WithError(err).Warn("failed to record security event")
	}
}

// Middleware applies the filter to every request through next
func (f *OriginFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := f.Check(r.Context(), r); err != nil {
			httputil.WriteAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
