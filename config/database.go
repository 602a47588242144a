package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"parkngo"`
	Password string `env:"PASSWORD"                envDefault:"parkngo"`
	Name     string `env:"NAME"                    envDefault:"parkngo"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	// Connection pool sizing and the startup ping deadline. Values are
	// clamped by Sanitize.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	PingTimeout     time.Duration `env:"PING_TIMEOUT"      envDefault:"5s"`
}

// Sanitize applies guardrails to database pool configuration values.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 1 {
		d.MaxOpenConns = 1
	}
	if d.MaxIdleConns < 0 {
		d.MaxIdleConns = 0
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 5 * time.Minute
	}
	if d.PingTimeout <= 0 {
		d.PingTimeout = 5 * time.Second
	}
}

// RedisConfig contains Redis configuration for the job store.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// PingTimeout bounds the startup connectivity check.
	PingTimeout time.Duration `env:"PING_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to redis configuration values.
func (r *RedisConfig) Sanitize() {
	if r.PingTimeout <= 0 {
		r.PingTimeout = 5 * time.Second
	}
}

// JobStoreConfig controls job retention in the redis-backed job store.
type JobStoreConfig struct {
	// TTL is how long a job record is retained. Jobs still awaiting payment
	// when the TTL fires are cancelled by the orchestrator's expiry timer.
	TTL time.Duration `env:"JOB_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to job store configuration values.
func (j *JobStoreConfig) Sanitize() {
	if j.TTL < time.Minute {
		j.TTL = time.Minute
	}
}
