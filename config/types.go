package config

// Contract selects the ledger identity and the deposit policy.
type Contract struct {
	// Address is the bech32 identity the ledger mints as. Empty derives one
	// from the contract name.
	Address          string `toml:"Address" yaml:"address"`
	AcceptedDenom    string `toml:"AcceptedDenom" yaml:"acceptedDenom"`
	ExtraFunds       string `toml:"ExtraFunds" yaml:"extraFunds"`
	AllowZeroDeposit bool   `toml:"AllowZeroDeposit" yaml:"allowZeroDeposit"`
}

// Setup holds the instantiate parameters applied on first start. Setup is
// skipped when Admin is empty.
type Setup struct {
	Admin            string `toml:"Admin" yaml:"admin"`
	Name             string `toml:"Name" yaml:"name"`
	Symbol           string `toml:"Symbol" yaml:"symbol"`
	Decimals         uint8  `toml:"Decimals" yaml:"decimals"`
	FinancialOfficer string `toml:"FinancialOfficer" yaml:"financialOfficer"`
	MinWithdrawal    string `toml:"MinWithdrawal" yaml:"minWithdrawal"`
}

// RPC configures caller identity and throttling for the JSON-RPC server.
type RPC struct {
	JWTSecret         string  `toml:"JWTSecret" yaml:"jwtSecret"`
	JWTIssuer         string  `toml:"JWTIssuer" yaml:"jwtIssuer"`
	JWTAudience       string  `toml:"JWTAudience" yaml:"jwtAudience"`
	ClockSkewSeconds  int     `toml:"ClockSkewSeconds" yaml:"clockSkewSeconds"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
	MaxRequestBytes   int64   `toml:"MaxRequestBytes" yaml:"maxRequestBytes"`
	// TrustedProxies are addresses or CIDR ranges allowed to set
	// X-Forwarded-For and X-Real-IP.
	TrustedProxies []string `toml:"TrustedProxies,omitempty" yaml:"trustedProxies,omitempty"`
}

// Journal configures the audit journal. An empty DSN disables it.
type Journal struct {
	DSN string `toml:"DSN" yaml:"dsn"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool              `toml:"Enabled" yaml:"enabled"`
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool              `toml:"Insecure" yaml:"insecure"`
	Headers  map[string]string `toml:"Headers" yaml:"headers"`
	Traces   bool              `toml:"Traces" yaml:"traces"`
	Metrics  bool              `toml:"Metrics" yaml:"metrics"`
}
