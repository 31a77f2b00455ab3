package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/bridgex/internal/server"
	"github.com/dmitrijs2005/bridgex/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("bridgex server: %v", err)
	}

	app.Run(ctx)

}
