package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/config"
	"github.com/matheus3301/convsync/internal/gateway"
	"github.com/matheus3301/convsync/internal/lock"
	"github.com/matheus3301/convsync/internal/logging"
	"github.com/matheus3301/convsync/internal/profile"
	"github.com/matheus3301/convsync/internal/status"
	"github.com/matheus3301/convsync/internal/wa"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	providerFlag := flag.String("provider", "", "message provider: whatsapp or loopback (overrides config)")
	pairFlag := flag.Bool("pair", false, "pair the WhatsApp account by QR code and exit")
	flag.Parse()

	name, err := profile.Resolve(*profileFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.Gateway.Listen = *listenFlag
	}
	if *providerFlag != "" {
		cfg.Gateway.Provider = *providerFlag
	}

	if *pairFlag {
		if err := pair(name); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		gateway.Module(gateway.Params{Profile: name, Config: cfg}),
	)

	app.Run()
}

// pair runs the WhatsApp QR flow in the foreground. It takes the gateway lock
// so it cannot race a running gateway for the device store.
func pair(name string) error {
	if err := profile.EnsureDir(name); err != nil {
		return err
	}
	lk, err := lock.Acquire(profile.Dir(name), "gateway")
	if err != nil {
		return fmt.Errorf("gateway for profile %q is running; stop it before pairing: %w", name, err)
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.NewFileOnly(profile.LogPath(name, "gateway"), "gateway", name)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New()
	adapter, err := wa.NewAdapter(ctx, profile.ProviderDBPath(name), b, status.NewMachine("provider", b), logger)
	if err != nil {
		return err
	}
	defer adapter.Stop()

	if adapter.IsLoggedIn() {
		fmt.Println("Already paired. Start the gateway with --provider whatsapp.")
		return nil
	}

	events, err := adapter.StartQRAuth(ctx)
	if err != nil {
		return fmt.Errorf("start pairing: %w", err)
	}

	fmt.Println("Scan the QR code with WhatsApp > Linked devices.")
	for evt := range events {
		switch evt.Type {
		case wa.AuthEventQRCode:
			fmt.Print("\033[H\033[2J")
			fmt.Println(wa.RenderQR(evt.QRCode))
		case wa.AuthEventAuthenticated:
			fmt.Println("Paired.")
			return nil
		case wa.AuthEventTimeout, wa.AuthEventAuthFailed:
			logger.Warn("pairing ended", zap.String("type", string(evt.Type)), zap.String("message", evt.Message))
			return fmt.Errorf("pairing failed: %s", evt.Message)
		}
	}
	return ctx.Err()
}
