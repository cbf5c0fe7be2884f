package cli

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/carepoint/gatekeeper/pkg/storage"
)

const defaultRedisURL = "redis://localhost:6379/0"

func addRedisFlag(fs *flag.FlagSet) {
	fs.String("redis-url", getEnv("GATEKEEPER_REDIS_URL", defaultRedisURL), "Redis URL")
}

func addRolesFlag(fs *flag.FlagSet) {
	fs.String("roles-file", getEnv("GATEKEEPER_ROLES_FILE", ""), "Role definition YAML file (built-in roles when empty)")
}

func stringFlag(fs *flag.FlagSet, name string) string {
	return fs.Lookup(name).Value.String()
}

func int64Flag(fs *flag.FlagSet, name string) int64 {
	v, _ := strconv.ParseInt(stringFlag(fs, name), 10, 64)
	return v
}

func durationFlag(fs *flag.FlagSet, name string) time.Duration {
	v, _ := time.ParseDuration(stringFlag(fs, name))
	return v
}

func openStore(fs *flag.FlagSet) (*storage.RedisStore, error) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = stringFlag(fs, "redis-url")
	store, err := storage.NewRedisStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

func loadRoles(fs *flag.FlagSet) (*rbac.Roles, error) {
	path := stringFlag(fs, "roles-file")
	if path == "" {
		return rbac.DefaultRoles(), nil
	}
	return rbac.LoadRoles(path)
}
