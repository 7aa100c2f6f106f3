package main

import (
	"context"
	"flag"
	"log"

	"github.com/rembon2016/cts-merchant-sub001/config"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/pkg/database"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	tag := flag.String("tag", "", "only drop cached responses under this tag (products, categories, cart, ...)")
	session := flag.String("session", "", "also delete this session id from the session store")
	flag.Parse()

	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	cfg := config.LoadEnv()
	ctx := context.Background()

	// 2. Setup Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("❌ Redis %s not reachable: %v", cfg.Redis.Addr, err)
	}

	// 3. Drop cached responses
	prefix := *tag
	if prefix != "" {
		prefix += ":"
	}
	if err := fetch.NewRedisCache(rdb).DeletePrefix(ctx, prefix); err != nil {
		log.Fatalf("❌ Failed to purge fetch cache: %v", err)
	}
	log.Printf("✅ Purged cached responses under %q", fetch.DefaultRedisPrefix+prefix)

	// 4. Delete session
	if *session == "" {
		return
	}
	var repo repository.SessionRepository
	switch cfg.Session.Driver {
	case "redis":
		repo = repository.NewRedisSessionRepo(rdb, cfg.Session.TTL)
	case "postgres":
		db, err := database.ConnectDB(cfg.Postgres, false)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		repo = repository.NewSessionRepo(db)
	default:
		log.Fatalf("❌ Session driver %q keeps sessions in the server process; restart it instead", cfg.Session.Driver)
	}
	if err := repo.Delete(ctx, *session); err != nil {
		log.Fatalf("❌ Failed to delete session %s: %v", *session, err)
	}
	log.Printf("✅ Session %s deleted", *session)
}
