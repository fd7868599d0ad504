// Command tierlimit starts the quota service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tierlimit/internal/tierlimit/app"
	"tierlimit/internal/tierlimit/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tierlimit",
		Short: "Tiered API rate limiting service",
		Long:  "Serve quota decisions for subscription tiers over HTTP, with admin-managed per-customer overrides",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd(), checkCmd(), printConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quota service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigPath: configPath})
			if err != nil {
				return err
			}
			application, err := app.NewApplication(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			shutdownTimeout := cfg.DrainTimeout
			if shutdownTimeout <= 0 {
				shutdownTimeout = 5 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return application.Shutdown(shutdownCtx)
		},
	}
}

func checkCmd() *cobra.Command {
	var addr, principalID, resource, tier string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Send one quota check to a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if principalID == "" || resource == "" {
				return fmt.Errorf("principal and resource are required")
			}
			payload, err := json.Marshal(map[string]string{
				"principalID": principalID,
				"resource":    resource,
				"tier":        tier,
			})
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Post(addr+"/v1/quota/check", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s\n%s", resp.Status, body)
			if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusTooManyRequests {
				return fmt.Errorf("check failed with status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "service base URL")
	cmd.Flags().StringVar(&principalID, "principal", "", "principal identifier")
	cmd.Flags().StringVar(&resource, "resource", "", "resource identifier")
	cmd.Flags().StringVar(&tier, "tier", "free", "subscription tier")
	return cmd
}

func printConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigPath: configPath})
			if err != nil {
				return err
			}
			return config.Print(os.Stdout, cfg)
		},
	}
}
