package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"captchad/internal/client"
)

// buildClientCmd groups commands that talk to a running server.
func buildClientCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Call a running captchad server",
		Args: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("client requires a subcommand: health|encoder|spec|predict")
		},
	}
	clientCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:3001", "Server base URL")
	clientCmd.PersistentFlags().DurationVar(&timeout, "http-timeout", 0, "Request timeout (default 2m)")

	healthCmd := &cobra.Command{Use: "health", Short: "GET /health", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.New(baseURL, timeout).Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}}
	encoderCmd := &cobra.Command{Use: "encoder", Short: "GET /encoder-metadata", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := client.New(baseURL, timeout).EncoderMetadata(cmd.Context())
		if err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), meta)
	}}
	specCmd := &cobra.Command{Use: "spec", Short: "GET /model-spec", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := client.New(baseURL, timeout).ModelSpec(cmd.Context())
		if err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), spec)
	}}
	predictCmd := &cobra.Command{Use: "predict <image>", Short: "POST /predict with an image file", Example: "  captchad client predict --url http://localhost:3001 ./2b827.png", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		res, err := client.New(baseURL, timeout).Predict(cmd.Context(), args[0], data)
		if err != nil {
			return err
		}
		return writeIndented(cmd.OutOrStdout(), res)
	}}
	clientCmd.AddCommand(healthCmd, encoderCmd, specCmd, predictCmd)
	return clientCmd
}
