package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

// ConfigurationRepositoryInterface defines persistence for search configurations
type ConfigurationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.SearchConfiguration) error
	GetByID(ctx context.Context, id string) (*domain.SearchConfiguration, error)
	GetDefault(ctx context.Context) (*domain.SearchConfiguration, error)
	List(ctx context.Context) ([]*domain.SearchConfiguration, error)
	Update(ctx context.Context, c *domain.SearchConfiguration) error
	ClearDefault(ctx context.Context, keepID string) error
	Delete(ctx context.Context, id string) error
}

// ConfigurationService manages named fan-out configurations. Marking one as
// default clears the flag on every other in the same transaction.
type ConfigurationService struct {
	repo     ConfigurationRepositoryInterface
	txRunner TxRunner
	uuidGen  UUIDGenerator
}

func NewConfigurationService(repo ConfigurationRepositoryInterface, txRunner TxRunner) *ConfigurationService {
	return NewConfigurationServiceWithUUIDGen(repo, txRunner, &DefaultUUIDGenerator{})
}

func NewConfigurationServiceWithUUIDGen(repo ConfigurationRepositoryInterface, txRunner TxRunner, uuidGen UUIDGenerator) *ConfigurationService {
	return &ConfigurationService{repo: repo, txRunner: txRunner, uuidGen: uuidGen}
}

type ConfigurationInput struct {
	Name                string
	TargetAnalysisCount int
	IsDefault           bool
}

func (s *ConfigurationService) Create(ctx context.Context, input ConfigurationInput) (*domain.SearchConfiguration, error) {
	c := domain.NewSearchConfiguration(s.uuidGen.NewString(), input.Name, input.TargetAnalysisCount, input.IsDefault, time.Now().UTC())
	if err := domain.ValidateSearchConfiguration(c); err != nil {
		return nil, err
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if c.IsDefault {
			if err := repos.Configurations().ClearDefault(ctx, c.ID); err != nil {
				return err
			}
		}
		return repos.Configurations().Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConfigurationService) Get(ctx context.Context, id string) (*domain.SearchConfiguration, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ConfigurationService) List(ctx context.Context) ([]*domain.SearchConfiguration, error) {
	return s.repo.List(ctx)
}

// Update replaces the mutable fields and bumps the version.
func (s *ConfigurationService) Update(ctx context.Context, id string, input ConfigurationInput) (*domain.SearchConfiguration, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(input.Name)
	c.TargetAnalysisCount = input.TargetAnalysisCount
	c.IsDefault = input.IsDefault
	c.UpdatedAt = time.Now().UTC()
	if err := domain.ValidateSearchConfiguration(c); err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if c.IsDefault {
			if err := repos.Configurations().ClearDefault(ctx, c.ID); err != nil {
				return err
			}
		}
		return repos.Configurations().Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConfigurationService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
