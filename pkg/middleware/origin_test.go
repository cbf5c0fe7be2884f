package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureEvents struct {
	mu     sync.Mutex
	events []*audit.SecurityEvent
}

func (c *captureEvents) Record(ctx context.Context, event *audit.SecurityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) Close() error { return nil }

func (c *captureEvents) ofType(eventType audit.EventType) []*audit.SecurityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.SecurityEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func requestFrom(remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	r.RemoteAddr = remoteAddr
	return r
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
		ok         bool
	}{
		{name: "host and port", remoteAddr: "10.1.2.3:5555", want: "10.1.2.3", ok: true},
		{name: "bare host", remoteAddr: "10.1.2.3", want: "10.1.2.3", ok: true},
		{name: "ipv6", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1", ok: true},
		{name: "ipv4 mapped", remoteAddr: "[::ffff:192.168.1.5]:443", want: "192.168.1.5", ok: true},
		{
			name:       "connection wins over headers",
			remoteAddr: "10.1.2.3:5555",
			headers:    map[string]string{"X-Real-IP": "8.8.8.8", "X-Forwarded-For": "9.9.9.9"},
			want:       "10.1.2.3",
			ok:         true,
		},
		{
			name:       "real ip before forwarded",
			remoteAddr: "",
			headers:    map[string]string{"X-Real-IP": "8.8.8.8", "X-Forwarded-For": "9.9.9.9"},
			want:       "8.8.8.8",
			ok:         true,
		},
		{
			name:       "first forwarded hop",
			remoteAddr: "pipe",
			headers:    map[string]string{"X-Forwarded-For": " 9.9.9.9 , 10.0.0.1"},
			want:       "9.9.9.9",
			ok:         true,
		},
		{name: "nothing usable", remoteAddr: "pipe", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := requestFrom(tt.remoteAddr)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			ip, ok := ClientIP(r)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, ip.String())
			}
		})
	}
}

func TestNewOriginFilter_InvalidEntries(t *testing.T) {
	_, err := NewOriginFilter([]string{"10.0.0.0/33"}, false, nil, nil)
	assert.Error(t, err)

	_, err = NewOriginFilter([]string{"not-an-ip"}, false, nil, nil)
	assert.Error(t, err)

	for _, entry := range []string{"::ffff:10.0.0.0/80", "::ffff:10.0.0.0/95"} {
		_, err = NewOriginFilter([]string{entry}, false, nil, nil)
		assert.Error(t, err, entry)
	}

	f, err := NewOriginFilter([]string{"", "  "}, false, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, f.Check(context.Background(), requestFrom("1.2.3.4:1")))
}

func TestOriginFilter_Check(t *testing.T) {
	events := &captureEvents{}
	logger, _ := test.NewNullLogger()
	f, err := NewOriginFilter([]string{"10.0.0.0/8", "192.168.1.5", "2001:db8::/32", "::ffff:172.16.0.0/108"}, true, events, logger)
	require.NoError(t, err)

	allowed := []string{
		"10.200.1.1:80",
		"192.168.1.5:80",
		"[::ffff:192.168.1.5]:80",
		"[2001:db8:1::7]:80",
		"172.16.9.9:80",
	}
	for _, addr := range allowed {
		assert.NoError(t, f.Check(context.Background(), requestFrom(addr)), addr)
	}

	err = f.Check(context.Background(), requestFrom("192.168.1.6:80"))
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindOriginDenied))

	denied := events.ofType(audit.EventTypeOriginDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "ip:192.168.1.6", denied[0].Identifier)
	assert.Equal(t, audit.LevelHigh, denied[0].Level)
}

func TestOriginFilter_EmptyList(t *testing.T) {
	dev, err := NewOriginFilter(nil, false, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, dev.Check(context.Background(), requestFrom("8.8.8.8:1")))

	events := &captureEvents{}
	prod, err := NewOriginFilter(nil, true, events, nil)
	require.NoError(t, err)
	err = prod.Check(context.Background(), requestFrom("10.0.0.1:1"))
	assert.True(t, auth.IsKind(err, auth.KindOriginDenied))
	assert.Len(t, events.ofType(audit.EventTypeOriginDenied), 1)
}

func TestOriginFilter_UnknownIPAllowed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	f, err := NewOriginFilter([]string{"10.0.0.0/8"}, true, nil, logger)
	require.NoError(t, err)

	assert.NoError(t, f.Check(context.Background(), requestFrom("pipe")))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestOriginFilter_Middleware(t *testing.T) {
	f, err := NewOriginFilter([]string{"10.0.0.0/8"}, true, nil, nil)
	require.NoError(t, err)

	handler := f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.9:1"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("11.0.0.9:1"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"origin_denied"`)
}
