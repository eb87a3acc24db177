package submission

import (
	"taskmarket-ledger/pkg/config"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("submission.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("submission.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.AutoMigrate(&Submission{}, &CampaignRating{})
}
