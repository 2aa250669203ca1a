package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-chat-relay/internal/gateway"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/database"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

// deps holds the process-wide connections shared by every command.
type deps struct {
	cfg     *config.Config
	db      *gorm.DB
	rdb     *redis.Client
	gateway gateway.Gateway

	members repository.MemberRepository
	chat    service.ChatService
}

func openDeps(ctx context.Context, cfg *config.Config, withGateway bool) (*deps, error) {
	l := log.Ctx(ctx)
	d := &deps{cfg: cfg}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	d.db = db
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		d.close(ctx)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	needRedis := cfg.Read.Store == config.ReadStoreRedis ||
		(withGateway && cfg.Gateway.Driver == gateway.DriverRedis)
	if needRedis {
		d.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			d.close(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	if withGateway {
		gw, err := gateway.New(ctx, cfg.Gateway, d.rdb)
		if err != nil {
			d.close(ctx)
			return nil, err
		}
		d.gateway = gw
		l.Info().Str(log.FieldGateway, gw.Name()).Msg("gateway ready")
	}

	ids, err := idgen.NewSnowflake(cfg.ID.MachineID, cfg.ID.Epoch)
	if err != nil {
		d.close(ctx)
		return nil, err
	}

	d.members = repository.NewGormMemberRepository(db)
	d.chat = service.NewChatService(
		repository.NewGormMessageRepository(db),
		d.members,
		ids,
		cfg.Chat.RequireMembership,
	)
	return d, nil
}

func (d *deps) readStore() repository.ReadStore {
	if d.cfg.Read.Store == config.ReadStoreRedis {
		return repository.NewRedisReadStore(d.rdb, d.cfg.Read.RedisPrefix)
	}
	return repository.NewGormReadStore(d.db)
}

func (d *deps) close(ctx context.Context) {
	l := log.Ctx(ctx)

	if d.gateway != nil {
		if err := d.gateway.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close gateway")
		}
	}
	if d.rdb != nil {
		if err := d.rdb.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if d.db != nil {
		if sqlDB, err := d.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
