package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	host string
	user string
)

var rootCmd = &cobra.Command{
	Use:   "duel",
	Short: "A CLI to play tic-tac-toe duels against the tictac-duel server",
	Long: `A command-line interface for the tictac-duel HTTP surface. Every player
command acts as the user given with --user.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "The host address of the server")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", os.Getenv("DUEL_USER"), "The player to act as")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your command '%s'", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
