package warehouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/warehouse"
)

func TestNewClientDisabledConfig(t *testing.T) {
	logger := zap.NewNop()

	client, err := warehouse.NewClient(nil, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)

	client, err = warehouse.NewClient(&config.WarehouseConfig{Enabled: false}, logger)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewClientMissingCredentials(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name string
		cfg  *config.WarehouseConfig
	}{
		{
			name: "missing URL",
			cfg:  &config.WarehouseConfig{Enabled: true, User: "user", Password: "pass"},
		},
		{
			name: "missing user",
			cfg:  &config.WarehouseConfig{Enabled: true, URL: "host:1433/db", Password: "pass"},
		},
		{
			name: "missing password",
			cfg:  &config.WarehouseConfig{Enabled: true, URL: "host:1433/db", User: "user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := warehouse.NewClient(tt.cfg, logger)
			assert.NoError(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNilClientBehavior(t *testing.T) {
	var client *warehouse.Client

	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Close())

	status := client.HealthCheck(context.Background())
	assert.Equal(t, "disabled", status.Status)

	_, err := client.FetchDeals(context.Background())
	assert.Error(t, err)
}
