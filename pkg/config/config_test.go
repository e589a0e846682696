package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doctrail-go/enrichment-engine/pkg/apperrors"
)

func TestRunConfig_Validate_RejectsNonPositiveLimits(t *testing.T) {
	cases := []struct {
		name string
		cfg  RunConfig
	}{
		{"zero API semaphore", RunConfig{APISemaphoreLimit: 0, DBSemaphoreLimit: 2, CheckpointInterval: 1000}},
		{"negative API semaphore", RunConfig{APISemaphoreLimit: -1, DBSemaphoreLimit: 2, CheckpointInterval: 1000}},
		{"zero DB semaphore", RunConfig{APISemaphoreLimit: 30, DBSemaphoreLimit: 0, CheckpointInterval: 1000}},
		{"zero checkpoint interval", RunConfig{APISemaphoreLimit: 30, DBSemaphoreLimit: 2, CheckpointInterval: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			assert.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
		})
	}
}

func TestRunConfig_Validate_AcceptsSpecDefaults(t *testing.T) {
	cfg := RunConfig{APISemaphoreLimit: 30, DBSemaphoreLimit: 2, CheckpointInterval: 1000}
	assert.NoError(t, cfg.validate())
}
