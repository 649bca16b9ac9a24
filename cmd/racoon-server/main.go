package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/KushagraAgarwal525/racoon/productivityservice"
)

func main() {
	if err := productivityservice.Run(); err != nil {
		log.Error().Err(err).Msg("productivity-service exited with error")
		os.Exit(1)
	}
}
