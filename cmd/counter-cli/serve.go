package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/govm-net/counter/gateway"
	"github.com/spf13/cobra"
)

var gatewayConfig = gateway.DefaultConfig()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve counters over HTTP",
	Long: `Serve the engine over HTTP.
Example: counter-cli serve --listen 127.0.0.1:8080
         curl -X POST -H 'X-Sender: alice' -d '{"counter_value":0}' localhost:8080/contracts`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return gateway.NewServer(engine, gatewayConfig).ListenAndServe(ctx)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&gatewayConfig.Listen, "listen", gatewayConfig.Listen, "Listen address")
	flags.Float64Var(&gatewayConfig.RateLimit, "rate-limit", gatewayConfig.RateLimit, "Requests per second per sender, 0 disables")
	flags.IntVar(&gatewayConfig.RateBurst, "rate-burst", gatewayConfig.RateBurst, "Rate limit burst")
	flags.Int64Var(&gatewayConfig.MaxBodyBytes, "max-body", gatewayConfig.MaxBodyBytes, "Request body limit in bytes")
}
