package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrawatch/infrawatch/internal/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var (
		subject string
		teamID  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(os.LookupEnv)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required to issue tokens")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tokens, err := auth.NewTokens(auth.Config{
				Secret:   []byte(cfg.Auth.JWTSecret),
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}

			token, expiresAt, err := tokens.Issue(subject, teamID)
			if err != nil {
				return err
			}

			logger.Debug("token issued", "subject", subject, "expires_at", expiresAt)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "# expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually an email")
	cmd.Flags().StringVar(&teamID, "team", "", "team ID to scope the token to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
