package storage

import "testing"

func TestKeyBuilders(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{SessionKey("u1", "s1"), "session:u1:s1"},
		{AttemptsKey("ip:10.0.0.1"), "auth:attempts:ip:10.0.0.1"},
		{LockoutKey("user:u1"), "auth:lockout:user:u1"},
		{BlacklistKey("j1"), "jwt:blacklist:j1"},
		{UserSessionsKey("u1"), "user:u1:sessions"},
		{SecurityEventsKey("ip:10.0.0.1"), "security:events:ip:10.0.0.1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestOwnerFromUserSessionsKey(t *testing.T) {
	tests := []struct {
		key   string
		owner string
		ok    bool
	}{
		{"user:u1:sessions", "u1", true},
		{"user:a:b:sessions", "a:b", true},
		{"user::sessions", "", false},
		{"session:u1:s1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			owner, ok := OwnerFromUserSessionsKey(tt.key)
			if ok != tt.ok || owner != tt.owner {
				t.Errorf("OwnerFromUserSessionsKey(%q) = %q, %v; want %q, %v", tt.key, owner, ok, tt.owner, tt.ok)
			}
		})
	}
}
