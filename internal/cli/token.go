package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/server"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		device string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a device token for the sync server",
		Long: `Mint an HS256 device token signed with the server's JWT secret. Put the
token in server.token on the device it was minted for.

Example:
  henscopos token --device till-1 --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = cfg.Serve.JWTSecret
			}
			if device == "" {
				device = cfg.Device.ID
			}
			if secret == "" {
				return NewExitError(ExitCommandError, "no secret: pass --secret or set serve.jwt_secret")
			}
			token, err := server.MintToken([]byte(secret), device, ttl, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to mint token", err)
			}
			return formatter(rootOpts, cmd).Success(tokenView{Device: device, Token: token, TTL: ttl.String()})
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device id (default device.id)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default serve.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

type tokenView struct {
	Device string `json:"device"`
	Token  string `json:"token"`
	TTL    string `json:"ttl"`
}

func (v tokenView) String() string { return v.Token }
