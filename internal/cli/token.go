package cli

import (
	"time"

	"github.com/spf13/cobra"

	"stockflow/internal/config"
	appctx "stockflow/internal/core/context"
	"stockflow/internal/domain/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		name    string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		Long:  "Mint a bearer token signed with the configured JWT secret. The server only validates tokens, so operators get theirs from here.",
		Args:  cobra.NoArgs,
		// No backend needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd)
			cfg, err := a.config()
			if err != nil {
				return p.failure(err)
			}

			jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
			if cfg.Auth.Issuer != "" {
				jwtCfg.Issuer = cfg.Auth.Issuer
			}
			jwtCfg.AccessTokenTTL = cfg.Auth.TokenTTL
			if ttl > 0 {
				jwtCfg.AccessTokenTTL = ttl
			}
			svc, err := auth.NewJWTService(jwtCfg)
			if err != nil {
				return p.failure(err)
			}

			issued, err := svc.Issue(appctx.Operator{Subject: subject, Name: name, Roles: roles})
			if err != nil {
				return p.failure(err)
			}
			if p.json {
				return p.emit(issued)
			}
			p.line("%s", issued.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator id recorded in the audit trail")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleWrite}, "roles to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// config returns the session configuration, loading it when no session is open.
func (a *app) config() (config.Config, error) {
	if a.session != nil {
		return a.session.Config, nil
	}
	return config.Load(a.configPath)
}
