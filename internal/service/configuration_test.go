package service

import (
	"context"
	"testing"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T, svc *ConfigurationService) []string {
	t.Helper()
	all, err := svc.List(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, c := range all {
		if c.IsDefault {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func TestConfigurationService_DefaultIsExclusive(t *testing.T) {
	store := newMemStore()
	svc := NewConfigurationServiceWithUUIDGen(store.Configurations(), store, &seqUUID{})
	ctx := context.Background()

	first, err := svc.Create(ctx, ConfigurationInput{Name: "narrow", TargetAnalysisCount: 10, IsDefault: true})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, defaults(t, svc))

	second, err := svc.Create(ctx, ConfigurationInput{Name: "wide", TargetAnalysisCount: 50, IsDefault: true})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, defaults(t, svc))

	_, err = svc.Update(ctx, first.ID, ConfigurationInput{Name: "narrow", TargetAnalysisCount: 12, IsDefault: true})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, defaults(t, svc))
}

func TestConfigurationService_Update(t *testing.T) {
	store := newMemStore()
	svc := NewConfigurationServiceWithUUIDGen(store.Configurations(), store, &seqUUID{})
	ctx := context.Background()

	created, err := svc.Create(ctx, ConfigurationInput{Name: "narrow", TargetAnalysisCount: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	updated, err := svc.Update(ctx, created.ID, ConfigurationInput{Name: " renamed ", TargetAnalysisCount: 30})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 30, updated.TargetAnalysisCount)
	assert.Equal(t, 2, updated.Version)
}

func TestConfigurationService_Validation(t *testing.T) {
	store := newMemStore()
	svc := NewConfigurationService(store.Configurations(), store)

	_, err := svc.Create(context.Background(), ConfigurationInput{Name: "", TargetAnalysisCount: 10})
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)

	_, err = svc.Create(context.Background(), ConfigurationInput{Name: "zero", TargetAnalysisCount: 0})
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)

	_, err = svc.Update(context.Background(), "missing", ConfigurationInput{Name: "x", TargetAnalysisCount: 1})
	assert.ErrorIs(t, err, domain.ErrConfigurationNotFound)
}
