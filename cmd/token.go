package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/remote"
)

var flagTokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <channel-id>",
	Short: "Issue a websocket access token for a channel",
	Long: `Sign a token for the websocket control endpoint. The channel must be
allow-listed for its commands to run. A --ttl of 0 never expires.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid channel id %q", args[0])
		}
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.JWTSecret == "" {
			return fmt.Errorf("remote.jwt_secret is not set")
		}

		token, err := remote.IssueToken(cfg.Remote.JWTSecret, channelID, flagTokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
