// Package main is the entrypoint for the reservation webhook client.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/api"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/api/handlers"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/baremetal"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/config"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/network"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/notification"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/orchestrator"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/security"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/sideeffect"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	opts := zap.Options{
		Development: os.Getenv("DEBUG") == "true",
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load()
	if err != nil {
		setupLog.Error(err, "invalid configuration")
		os.Exit(1)
	}

	k8sClient, err := client.New(ctrl.GetConfigOrDie(), client.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "unable to create Kubernetes client")
		os.Exit(1)
	}

	hosts := baremetal.NewManager(k8sClient, baremetal.Config{
		GVK: schema.GroupVersionKind{
			Group:   cfg.HostAPIGroup,
			Version: cfg.HostAPIVersion,
			Kind:    cfg.HostKind,
		},
		Namespace:             cfg.Namespace,
		ProvisionImage:        cfg.ProvisionImage,
		ProvisionChecksum:     cfg.ProvisionChecksum,
		ProvisionChecksumType: cfg.ProvisionChecksumType,
		DeprovisionImage:      cfg.DeprovisionImage,
	})

	signer := security.NewSigner(cfg.WebhookSecret)
	notifier := notification.NewClient(notification.Config{
		NotificationEndpoint: cfg.NotificationEndpoint,
		NotificationTimeout:  cfg.NotificationTimeout,
		WebhookLogEndpoint:   cfg.WebhookLogEndpoint,
		WebhookLogTimeout:    cfg.WebhookLogTimeout,
		Namespace:            cfg.Namespace,
	}, signer)

	var netConfigurator sideeffect.NetworkConfigurator
	if cfg.NetworkConfigEnabled {
		netCfg, err := network.LoadConfig(cfg.NetworkConfigPath)
		if err != nil {
			setupLog.Error(err, "unable to load network configuration", "path", cfg.NetworkConfigPath)
			os.Exit(1)
		}
		netCfg.Override(cfg.SwitchHost, cfg.SwitchUsername, cfg.SwitchPassword)
		if err := netCfg.Validate(); err != nil {
			setupLog.Error(err, "invalid network configuration")
			os.Exit(1)
		}
		netConfigurator = network.NewManager(netCfg)
		setupLog.Info("network configuration enabled", "switch", netCfg.Switch.Host)
	}

	dispatcher := sideeffect.NewDispatcher(notifier, notifier, netConfigurator)
	engine := orchestrator.NewEngine(hosts, dispatcher, cfg.HostOperationTimeout)
	handler := handlers.NewHandler(engine, signer, cfg.SignatureFailureStatus)
	server := api.NewServer(cfg.Port, handler)

	ctx := ctrl.SetupSignalHandler()

	go func() {
		setupLog.Info("starting webhook server",
			"port", cfg.Port,
			"namespace", cfg.Namespace,
			"hostKind", cfg.HostKind,
			"signatureVerification", signer.Enabled())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			setupLog.Error(err, "webhook server failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		setupLog.Error(err, "graceful shutdown failed")
		os.Exit(1)
	}
}
