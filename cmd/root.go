package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "person-matcher",
	Short: "A person re-identification service for security camera sightings",
	Long: `Person Matcher groups person sightings from security cameras by identity.
It uses vision models (OpenAI, Gemini, Ollama) to turn person crops into
structured appearance descriptions and a deterministic evidence engine to
decide whether two sightings show the same person.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// Missing .env is fine, deployments set env vars directly.
	_ = godotenv.Load()
}
