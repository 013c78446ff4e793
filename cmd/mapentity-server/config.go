package main

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

type Config struct {
	servicePort string

	kindsPath string
	opaPath   string

	storageBackend string

	rendererEndpoint string
	auditEndpoint    string

	pghost     string
	pguser     string
	pgpassword string
	pgport     string
	pgdbname   string
	pgsslmode  string
}

func LoadConfiguration(ctx context.Context) Config {
	return Config{
		servicePort: env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080"),

		kindsPath: env.GetVariableOrDefault(ctx, "KINDS_CONFIG_PATH", "/opt/mapentity/config/kinds.yaml"),
		opaPath:   env.GetVariableOrDefault(ctx, "OPA_POLICY_PATH", "/opt/mapentity/config/authn.rego"),

		storageBackend: env.GetVariableOrDefault(ctx, "STORAGE_BACKEND", "memory"),

		rendererEndpoint: env.GetVariableOrDefault(ctx, "RENDERER_ENDPOINT", ""),
		auditEndpoint:    env.GetVariableOrDefault(ctx, "AUDIT_ENDPOINT", ""),

		pghost:     env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		pguser:     env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		pgpassword: env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		pgport:     env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		pgdbname:   env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "mapentity"),
		pgsslmode:  env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.pguser, c.pgpassword, c.pghost, c.pgport, c.pgdbname, c.pgsslmode)
}
