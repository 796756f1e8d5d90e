package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"klubstake/core"
	"klubstake/core/types"
	"klubstake/crypto"
	"klubstake/native/deposit"
	klubotel "klubstake/observability/otel"
	"klubstake/rpc"
)

// Validate rejects malformed addresses, unknown policies and empty
// denominations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Contract.AcceptedDenom) == "" {
		return fmt.Errorf("config: Contract.AcceptedDenom must not be empty")
	}
	if _, err := deposit.ParseExtraFundsPolicy(c.Contract.ExtraFunds); err != nil {
		return fmt.Errorf("config: Contract.ExtraFunds: %w", err)
	}
	if _, err := c.ContractAddress(); err != nil {
		return err
	}
	for field, value := range map[string]string{
		"Setup.Admin":            c.Setup.Admin,
		"Setup.FinancialOfficer": c.Setup.FinancialOfficer,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := crypto.ParseAddress(crypto.KlubPrefix, value); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	if strings.TrimSpace(c.Setup.MinWithdrawal) != "" {
		if _, err := types.ParseAmount(c.Setup.MinWithdrawal); err != nil {
			return fmt.Errorf("config: Setup.MinWithdrawal: %w", err)
		}
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("config: RPC rate limits must not be negative")
	}
	if c.RPC.ClockSkewSeconds < 0 {
		return fmt.Errorf("config: RPC.ClockSkewSeconds must not be negative")
	}
	if _, err := rpc.ParseTrustedProxies(c.RPC.TrustedProxies); err != nil {
		return fmt.Errorf("config: RPC.TrustedProxies: %w", err)
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: Telemetry.Endpoint required when telemetry is enabled")
	}
	return nil
}

// ContractAddress returns the configured ledger identity, or the zero address
// when none is set.
func (c *Config) ContractAddress() (crypto.Address, error) {
	if strings.TrimSpace(c.Contract.Address) == "" {
		return crypto.Address{}, nil
	}
	addr, err := crypto.ParseAddress(crypto.KlubPrefix, c.Contract.Address)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: Contract.Address: %w", err)
	}
	return addr, nil
}

// Policy returns the deposit policy selected by the contract section.
func (c *Config) Policy() (deposit.Policy, error) {
	extra, err := deposit.ParseExtraFundsPolicy(c.Contract.ExtraFunds)
	if err != nil {
		return deposit.Policy{}, err
	}
	return deposit.Policy{ExtraFunds: extra, AllowZeroDeposit: c.Contract.AllowZeroDeposit}, nil
}

// SetupRequested reports whether the node should instantiate on first start.
func (c *Config) SetupRequested() bool {
	return strings.TrimSpace(c.Setup.Admin) != ""
}

// InstantiateMsg converts the setup section into an instantiate message and
// the admin identity that submits it.
func (c *Config) InstantiateMsg() (crypto.Address, core.InstantiateMsg, error) {
	admin, err := crypto.ParseAddress(crypto.KlubPrefix, c.Setup.Admin)
	if err != nil {
		return crypto.Address{}, core.InstantiateMsg{}, fmt.Errorf("config: Setup.Admin: %w", err)
	}
	return admin, core.InstantiateMsg{
		Name:             c.Setup.Name,
		Symbol:           c.Setup.Symbol,
		Decimals:         c.Setup.Decimals,
		FinancialOfficer: c.Setup.FinancialOfficer,
		MinWithdrawal:    c.Setup.MinWithdrawal,
	}, nil
}

// ServerConfig converts the RPC section into server settings.
func (c *Config) ServerConfig() rpc.ServerConfig {
	secret := strings.TrimSpace(c.RPC.JWTSecret)
	return rpc.ServerConfig{
		JWT: rpc.JWTConfig{
			Enable:     secret != "",
			HMACSecret: secret,
			Issuer:     c.RPC.JWTIssuer,
			Audience:   c.RPC.JWTAudience,
			ClockSkew:  time.Duration(c.RPC.ClockSkewSeconds) * time.Second,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: c.RPC.RequestsPerMinute,
			Burst:             c.RPC.Burst,
		},
		MaxRequestBytes: c.RPC.MaxRequestBytes,
		TrustedProxies:  c.RPC.TrustedProxies,
	}
}

// OTel converts the telemetry section into exporter settings. Headers set in
// OTEL_EXPORTER_OTLP_HEADERS are merged underneath the configured ones.
func (c *Config) OTel(service string) klubotel.Config {
	headers := klubotel.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	for key, value := range c.Telemetry.Headers {
		headers[key] = value
	}
	return klubotel.Config{
		Enabled:     c.Telemetry.Enabled,
		ServiceName: service,
		Version:     core.ContractVersion,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}
