package main

import (
	"context"
	"fmt"
	"log"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/config"
	"github.com/robibex92/taig-sub000/internal/database"
	"github.com/robibex92/taig-sub000/internal/router"
	"github.com/robibex92/taig-sub000/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	// load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// 令牌黑名单：配了 redis 就用共享存储，否则退化为进程内存
	blacklist := buildBlacklist(cfg)

	// 启动时清理一次过期会话；周期清理交给外部调度器
	if count, err := store.NewSessionStore(db).DeleteExpired(context.Background()); err != nil {
		log.Printf("cleanup expired sessions: %v", err)
	} else if count > 0 {
		log.Printf("cleaned up %d expired sessions", count)
	}

	// setup router
	r := router.SetupRouter(cfg, db, blacklist)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	log.Printf("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

func buildBlacklist(cfg *config.Config) auth.TokenBlacklist {
	if cfg.Redis.Addr == "" {
		log.Printf("redis not configured, using in-process token blacklist")
		return auth.NewMemoryBlacklist()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	return auth.NewRedisBlacklist(client)
}
