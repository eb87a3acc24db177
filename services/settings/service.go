package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/errutil"
	"taskmarket-ledger/pkg/logger"
	"taskmarket-ledger/pkg/rediskey"
	"taskmarket-ledger/pkg/validation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "settings_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "settings_cache_miss_total"})
)

// Reader is what money-moving services need from the settings provider.
type Reader interface {
	Get(ctx context.Context) (*PlatformSettings, error)
}

// ReaderFunc adapts a function into a Reader.
type ReaderFunc func(ctx context.Context) (*PlatformSettings, error)

func (f ReaderFunc) Get(ctx context.Context) (*PlatformSettings, error) {
	return f(ctx)
}

// cacheClient is the slice of go-redis the settings cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service serves the platform settings singleton from redis when it can,
// from the database otherwise. Concurrent cache misses share one load.
//
// Readers only fill an empty key (SETNX); Update overwrites it with the saved
// row. A reader that loaded the row before an update can therefore never
// put the old values back.
type Service struct {
	db    *gorm.DB
	cache cacheClient
	ttl   time.Duration

	defaults PlatformSettings
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:  p.DB,
		ttl: p.Config.Settings.CacheTTL,
		defaults: PlatformSettings{
			ID:                SingletonID,
			PlatformFee:       p.Config.Platform.PlatformFee,
			MinimumDeposit:    p.Config.Platform.MinimumDeposit,
			MinimumWithdrawal: p.Config.Platform.MinimumWithdrawal,
			MaximumWithdrawal: p.Config.Platform.MaximumWithdrawal,
			WithdrawalFee:     p.Config.Platform.WithdrawalFee,
		},
	}
	if p.Redis != nil {
		s.cache = p.Redis
	}
	return s
}

func (s *Service) Get(ctx context.Context) (*PlatformSettings, error) {
	if cached, ok := s.fromCache(ctx); ok {
		cacheHits.Inc()
		return cached, nil
	}
	cacheMiss.Inc()

	v, err, _ := s.group.Do("platform", func() (any, error) {
		ps, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.fillCache(ctx, ps)
		return ps, nil
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*PlatformSettings)
	return &out, nil
}

// load reads the singleton row, seeding it from configuration on first use.
func (s *Service) load(ctx context.Context) (*PlatformSettings, error) {
	var ps PlatformSettings
	err := s.db.WithContext(ctx).
		Where(&PlatformSettings{ID: SingletonID}).
		Attrs(s.defaults).
		FirstOrCreate(&ps).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = s.db.WithContext(ctx).Take(&ps, SingletonID).Error
	}
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (s *Service) Update(ctx context.Context, actor *auth.Actor, req UpdateSettingsRequest) (*PlatformSettings, error) {
	if err := auth.Require(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	if *req.MaximumWithdrawal < *req.MinimumWithdrawal {
		return nil, errutil.BadRequest("validation failed", nil, errutil.WithDetails(errutil.Detail{
			Field:   "maximum_withdrawal",
			Message: "maximum_withdrawal must be at least minimum_withdrawal",
		}))
	}
	if *req.WithdrawalFee >= *req.MinimumWithdrawal {
		return nil, errutil.BadRequest("validation failed", nil, errutil.WithDetails(errutil.Detail{
			Field:   "withdrawal_fee",
			Message: "withdrawal_fee must be below minimum_withdrawal",
		}))
	}

	ps := &PlatformSettings{
		ID:                SingletonID,
		PlatformFee:       *req.PlatformFee,
		MinimumDeposit:    *req.MinimumDeposit,
		MinimumWithdrawal: *req.MinimumWithdrawal,
		MaximumWithdrawal: *req.MaximumWithdrawal,
		WithdrawalFee:     *req.WithdrawalFee,
	}
	if err := s.db.WithContext(ctx).Save(ps).Error; err != nil {
		return nil, err
	}

	s.group.Forget("platform")
	s.replaceCache(ctx, ps)
	logger.FromContext(ctx).Info("platform settings updated", zap.String("by", actor.ID))
	return ps, nil
}

func (s *Service) fromCache(ctx context.Context) (*PlatformSettings, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, rediskey.BuildPlatformSettingsKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Warn("settings cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var ps PlatformSettings
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, false
	}
	return &ps, true
}

// fillCache stores a row read on the miss path, unless the key is already set.
func (s *Service) fillCache(ctx context.Context, ps *PlatformSettings) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return
	}
	if err := s.cache.SetNX(ctx, rediskey.BuildPlatformSettingsKey(), raw, s.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("settings cache write failed", zap.Error(err))
	}
}

// replaceCache overwrites the cached row after an update. When the write
// fails the key is dropped so readers go back to the database.
func (s *Service) replaceCache(ctx context.Context, ps *PlatformSettings) {
	if s.cache == nil {
		return
	}
	key := rediskey.BuildPlatformSettingsKey()
	raw, err := json.Marshal(ps)
	if err == nil {
		err = s.cache.Set(ctx, key, raw, s.ttl).Err()
	}
	if err == nil {
		return
	}
	logger.FromContext(ctx).Warn("settings cache refresh failed, dropping key", zap.Error(err))
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		logger.FromContext(ctx).Error("settings cache invalidation failed", zap.Error(err))
	}
}
