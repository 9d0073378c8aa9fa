package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime configuration for the webhook service. Everything
// comes from environment variables so the binary can be configured entirely
// from its Deployment manifest.
type Config struct {
	Port int

	// Kubernetes target for host mutations.
	Namespace      string
	HostAPIGroup   string
	HostAPIVersion string
	HostKind       string

	// Images applied when a reservation starts or ends. An empty
	// DeprovisionImage means deprovisioning clears the host spec instead of
	// re-imaging it.
	ProvisionImage        string
	ProvisionChecksum     string
	ProvisionChecksumType string
	DeprovisionImage      string

	// Shared secret for inbound signature verification and outbound signing.
	// Empty disables verification.
	WebhookSecret          string
	SignatureFailureStatus int

	// Upper bound for a single provision/deprovision call.
	HostOperationTimeout time.Duration

	NotificationEndpoint string
	NotificationTimeout  time.Duration
	WebhookLogEndpoint   string
	WebhookLogTimeout    time.Duration

	// Switch configuration hook. Host/username/password override values from
	// the network config file when set.
	NetworkConfigEnabled bool
	NetworkConfigPath    string
	SwitchHost           string
	SwitchUsername       string
	SwitchPassword       string
}

// Load reads the configuration from the environment, applying defaults for
// anything unset, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Namespace:             lookup("K8S_NAMESPACE", "default"),
		HostAPIGroup:          lookup("BMH_API_GROUP", "metal3.io"),
		HostAPIVersion:        lookup("BMH_API_VERSION", "v1alpha1"),
		HostKind:              lookup("BMH_KIND", "BareMetalHost"),
		ProvisionImage:        lookup("PROVISION_IMAGE", ""),
		ProvisionChecksum:     lookup("PROVISION_CHECKSUM", ""),
		ProvisionChecksumType: lookup("PROVISION_CHECKSUM_TYPE", "sha256"),
		DeprovisionImage:      lookup("DEPROVISION_IMAGE", ""),
		WebhookSecret:         lookup("WEBHOOK_SECRET", ""),
		NotificationEndpoint:  lookup("NOTIFICATION_ENDPOINT", ""),
		WebhookLogEndpoint:    lookup("WEBHOOK_LOG_ENDPOINT", ""),
		NetworkConfigPath:     lookup("NETWORK_CONFIG_PATH", "config/network.yaml"),
		SwitchHost:            lookup("SWITCH_HOST", ""),
		SwitchUsername:        lookup("SWITCH_USERNAME", ""),
		SwitchPassword:        lookup("SWITCH_PASSWORD", ""),
	}

	var err error
	if cfg.Port, err = lookupInt("PORT", 8088); err != nil {
		return nil, err
	}
	if cfg.SignatureFailureStatus, err = lookupInt("SIGNATURE_FAILURE_STATUS", http.StatusUnauthorized); err != nil {
		return nil, err
	}
	if cfg.HostOperationTimeout, err = lookupDuration("HOST_OPERATION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotificationTimeout, err = lookupDuration("NOTIFICATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WebhookLogTimeout, err = lookupDuration("WEBHOOK_LOG_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.NetworkConfigEnabled, err = lookupBool("NETWORK_CONFIG_ENABLED", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.ProvisionImage == "" {
		return fmt.Errorf("PROVISION_IMAGE must be set")
	}
	if c.SignatureFailureStatus != http.StatusUnauthorized && c.SignatureFailureStatus != http.StatusForbidden {
		return fmt.Errorf("SIGNATURE_FAILURE_STATUS must be 401 or 403, got %d", c.SignatureFailureStatus)
	}
	if c.HostOperationTimeout <= 0 {
		return fmt.Errorf("HOST_OPERATION_TIMEOUT must be positive")
	}
	if c.NotificationTimeout <= 0 || c.WebhookLogTimeout <= 0 {
		return fmt.Errorf("notification and webhook log timeouts must be positive")
	}
	if c.NetworkConfigEnabled && c.NetworkConfigPath == "" {
		return fmt.Errorf("NETWORK_CONFIG_PATH must be set when NETWORK_CONFIG_ENABLED is true")
	}
	return nil
}

func lookup(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func lookupInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func lookupBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

// lookupDuration accepts either a Go duration string ("30s") or a bare
// integer number of seconds, which is what older deployments export.
func lookupDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
