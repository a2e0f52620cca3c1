package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the run ledger connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // "memory", "sqlite", "postgres" or "mysql".
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or file path for sqlite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // Schema name for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for PostgreSQL.
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}

// IsSQL reports whether the ledger is backed by a SQL database.
func (c DatabaseConfig) IsSQL() bool {
	return c.Type != "" && c.Type != "memory"
}
