package config

import (
	"os"
	"testing"
)

func TestProductionConfig_Defaults(t *testing.T) {
	defer os.Unsetenv("PRODUCTION_MODE")
	defer os.Unsetenv("PRODUCTION_LOCAL_MODE")
	os.Unsetenv("PRODUCTION_MODE")
	os.Unsetenv("PRODUCTION_LOCAL_MODE")

	cfg := Load()

	if cfg.Production.Enabled {
		t.Error("Production.Enabled = true, want false (disabled by default)")
	}
	if cfg.Production.IsProduction() {
		t.Error("IsProduction() = true, want false by default")
	}
}

func TestProductionConfig_EnabledViaEnv(t *testing.T) {
	defer os.Unsetenv("PRODUCTION_MODE")
	os.Setenv("PRODUCTION_MODE", "1")

	cfg := Load()

	if !cfg.Production.Enabled {
		t.Error("Production.Enabled = false, want true when PRODUCTION_MODE=1")
	}
	if !cfg.Production.IsProduction() {
		t.Error("IsProduction() = false, want true when enabled")
	}
	if !cfg.Production.RequireAuthentication {
		t.Error("RequireAuthentication = false, want true for production without local-mode ack")
	}
}

func TestProductionConfig_LocalModeAcknowledged(t *testing.T) {
	defer os.Unsetenv("PRODUCTION_MODE")
	defer os.Unsetenv("PRODUCTION_LOCAL_MODE")
	os.Setenv("PRODUCTION_MODE", "1")
	os.Setenv("PRODUCTION_LOCAL_MODE", "1")

	cfg := Load()

	if !cfg.Production.LocalModeAcknowledged {
		t.Error("LocalModeAcknowledged = false, want true")
	}
	if cfg.Production.RequireAuthentication {
		t.Error("RequireAuthentication = true, want false when local mode acknowledged")
	}
	if cfg.Production.RequireTLS {
		t.Error("RequireTLS = true, want false when local mode acknowledged")
	}
}

func TestProductionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProductionConfig
		wantErr bool
	}{
		{
			name:    "disabled - always valid",
			cfg:     ProductionConfig{Enabled: false},
			wantErr: false,
		},
		{
			name:    "enabled, auth required and configured",
			cfg:     ProductionConfig{Enabled: true, RequireAuthentication: true, AuthenticationConfigured: true},
			wantErr: false,
		},
		{
			name:    "enabled, auth required but not configured",
			cfg:     ProductionConfig{Enabled: true, RequireAuthentication: true, AuthenticationConfigured: false},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
