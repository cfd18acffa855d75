//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"goldsweep/internal/config"
)

func buildAppWithWire(cfg config.Config) (*App, func(), error) {
	wire.Build(
		provideSource,
		provideCandleStore,
		provideRunStore,
		provideFilter,
		provideBacktestService,
		provideLatest,
		provideRegistry,
		provideScanner,
		provideLiveRouter,
		provideMetricsHandler,
		provideHTTPServer,
		provideApp,
	)
	return nil, nil, nil
}
