package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
)

// Module is an Fx module that provides InMemoryRunRepository as a repository.RunRepository.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryRunRepository,
			fx.As(new(repository.RunRepository)),
		),
	),
)
