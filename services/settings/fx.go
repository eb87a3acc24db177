package settings

import (
	"taskmarket-ledger/pkg/config"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("settings.service",
	fx.Provide(
		NewService,
		func(s *Service) Reader { return s },
	),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("settings.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.AutoMigrate(&PlatformSettings{})
}
