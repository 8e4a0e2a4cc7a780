// Package config defines the composition root's flat configuration
// surface, in the jessevdk/go-flags style every cmd/*/main.go uses: a
// struct of long/env/default-tagged fields parsed once at startup.
package config

import "time"

// Config covers the clearance level, barrier timeout, coinbase maturity,
// max money and retarget parameters the persistence core needs, plus the
// ambient postgres-dsn/log-level/metrics-addr knobs every command carries.
type Config struct {
	PostgresDSN string `long:"postgres-dsn" env:"LEDGERCORE_POSTGRES_DSN" description:"Postgres connection string" required:"true"`

	Clearance             uint64        `long:"clearance" env:"LEDGERCORE_CLEARANCE" description:"blocks accumulated before a forced organize+validate pass" default:"400"`
	BarrierTimeout        time.Duration `long:"barrier-timeout" env:"LEDGERCORE_BARRIER_TIMEOUT" description:"quiet period before a debounced organize+validate pass" default:"500ms"`
	ForcedCyclesPerSecond int           `long:"forced-cycles-per-second" env:"LEDGERCORE_FORCED_CYCLES_PER_SECOND" description:"maximum rate of clearance-triggered organize+validate cycles" default:"4"`

	CoinbaseMaturity uint64 `long:"coinbase-maturity" env:"LEDGERCORE_COINBASE_MATURITY" description:"blocks a coinbase output must age before it can be spent" default:"100"`
	MaxMoney         int64  `long:"max-money" env:"LEDGERCORE_MAX_MONEY" description:"maximum satoshi value for any output or running input sum" default:"2100000000000000"`

	RetargetInterval  uint64 `long:"retarget-interval" env:"LEDGERCORE_RETARGET_INTERVAL" description:"blocks between difficulty retargets (0 disables retarget checking)" default:"2016"`
	TargetTimespanSec int64  `long:"target-timespan-seconds" env:"LEDGERCORE_TARGET_TIMESPAN_SECONDS" description:"intended duration of one retarget interval" default:"1209600"`
	MaxRetargetFactor int64  `long:"max-retarget-factor" env:"LEDGERCORE_MAX_RETARGET_FACTOR" description:"maximum retarget swing in either direction" default:"4"`

	LogLevel    string `long:"log-level" env:"LEDGERCORE_LOG_LEVEL" description:"zap log level" default:"info"`
	MetricsAddr string `long:"metrics-addr" env:"LEDGERCORE_METRICS_ADDR" description:"address to serve /metrics on" default:":9100"`
}
