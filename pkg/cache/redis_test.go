package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapoteju/beamer-mono-sub001/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: false, Host: "unreachable", Port: 1})
	require.NoError(t, err)
	assert.Nil(t, client)
}
