package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"mixdown/cache"
	"mixdown/config"
	"mixdown/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis connection",
	Long:  `Connects to Redis, exercises the request-dedup keys and reports the cached playback position.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("connect to Redis: %v", err)
		}
		fmt.Println("connected")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dedup := cache.NewRedisDedupCache(time.Minute)
		probe := fmt.Sprintf("probe-%d", time.Now().UnixNano())
		first, err := dedup.FirstSeen(ctx, probe)
		if err != nil {
			log.Fatalf("dedup probe: %v", err)
		}
		again, err := dedup.FirstSeen(ctx, probe)
		if err != nil {
			log.Fatalf("dedup probe: %v", err)
		}
		fmt.Printf("dedup probe: first=%v repeat=%v\n", first, again)

		if pos, err := cache.GetPlaybackPosition(ctx); err != nil {
			fmt.Printf("playback position: not cached (%v)\n", err)
		} else {
			fmt.Printf("playback position: frame %d\n", pos)
		}

		if err := db.CloseRedis(); err != nil {
			log.Printf("close Redis: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
