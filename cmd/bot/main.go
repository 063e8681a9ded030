package main

import (
	"log"

	"tradebot/core/bootstrap"
	corecmd "tradebot/core/cmd"
	"tradebot/internal/bot"

	"github.com/joho/godotenv"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := carrier.(*bot.Config)
			res, err := bootstrap.Run(bootstrap.Options{
				Config:      cfg.CoreConfig(),
				Database:    cfg.Database,
				UseDatabase: cfg.Storage.Mode == bot.StoragePostgres,
			})
			if err != nil {
				return nil, err
			}
			return bot.New(cfg, res.DB)
		},
	})
	if err != nil {
		log.Fatalf("bot exited: %v", err)
	}
}
