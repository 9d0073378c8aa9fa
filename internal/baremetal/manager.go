package baremetal

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Config carries the cluster-side settings for host mutations. The host kind
// is deployment configuration, not compiled in, so hosts are addressed as
// unstructured objects.
type Config struct {
	GVK       schema.GroupVersionKind
	Namespace string

	ProvisionImage        string
	ProvisionChecksum     string
	ProvisionChecksumType string

	// DeprovisionImage, when set, turns deprovisioning into a re-image with
	// a wipe image instead of clearing the host spec.
	DeprovisionImage string
}

// Manager applies provisioning and deprovisioning merge patches to
// BareMetalHost resources and maintains their user-data secrets.
type Manager struct {
	client client.Client
	cfg    Config
}

func NewManager(c client.Client, cfg Config) *Manager {
	return &Manager{client: c, cfg: cfg}
}

// Provision images the named host with the configured provisioning image.
// When sshKey is non-empty the host's user-data secret is created or updated
// first; a secret failure aborts the provision.
func (m *Manager) Provision(ctx context.Context, host, sshKey string) error {
	logger := log.FromContext(ctx).WithName("baremetal")

	if sshKey != "" {
		if err := m.ensureUserDataSecret(ctx, host, sshKey); err != nil {
			return fmt.Errorf("user-data secret for host %q: %w", host, err)
		}
	}

	patch := m.imagePatch(host, m.cfg.ProvisionImage, m.cfg.ProvisionChecksum, m.cfg.ProvisionChecksumType)
	if err := m.applyPatch(ctx, host, patch); err != nil {
		return fmt.Errorf("provision host %q: %w", host, err)
	}
	logger.Info("provisioned host", "host", host, "namespace", m.cfg.Namespace)
	return nil
}

// Deprovision releases the named host. With a wipe image configured the host
// is re-imaged; otherwise its image and user-data references are cleared.
func (m *Manager) Deprovision(ctx context.Context, host string) error {
	logger := log.FromContext(ctx).WithName("baremetal")

	var patch map[string]any
	if m.cfg.DeprovisionImage != "" {
		patch = m.imagePatch(host, m.cfg.DeprovisionImage, "", "")
	} else {
		// Explicit nulls: the merge patch must clear the fields, not leave
		// them untouched.
		patch = map[string]any{"spec": map[string]any{"image": nil, "userData": nil}}
	}

	if err := m.applyPatch(ctx, host, patch); err != nil {
		return fmt.Errorf("deprovision host %q: %w", host, err)
	}
	logger.Info("deprovisioned host", "host", host, "namespace", m.cfg.Namespace)
	return nil
}

func (m *Manager) imagePatch(host, imageURL, checksum, checksumType string) map[string]any {
	return map[string]any{
		"spec": map[string]any{
			"image": map[string]any{
				"url":          imageURL,
				"checksum":     orNull(checksum),
				"checksumType": orNull(checksumType),
			},
			"userData": map[string]any{
				"name":      host + "-userdata",
				"namespace": m.cfg.Namespace,
			},
		},
	}
}

func (m *Manager) applyPatch(ctx context.Context, host string, patch map[string]any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(m.cfg.GVK)
	obj.SetName(host)
	obj.SetNamespace(m.cfg.Namespace)

	return m.client.Patch(ctx, obj, client.RawPatch(types.MergePatchType, body))
}

func (m *Manager) ensureUserDataSecret(ctx context.Context, host, sshKey string) error {
	logger := log.FromContext(ctx).WithName("baremetal")

	userData, err := renderCloudConfig(sshKey)
	if err != nil {
		return fmt.Errorf("render cloud-config: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      host + "-userdata",
			Namespace: m.cfg.Namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{"userData": userData},
	}

	err = m.client.Create(ctx, secret)
	if err == nil {
		logger.Info("created user-data secret", "secret", secret.Name, "namespace", m.cfg.Namespace)
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return err
	}

	existing := &corev1.Secret{}
	if err := m.client.Get(ctx, client.ObjectKeyFromObject(secret), existing); err != nil {
		return err
	}
	existing.Type = corev1.SecretTypeOpaque
	existing.Data = secret.Data
	if err := m.client.Update(ctx, existing); err != nil {
		return err
	}
	logger.Info("updated existing user-data secret", "secret", secret.Name, "namespace", m.cfg.Namespace)
	return nil
}

// orNull maps the empty string to an explicit JSON null so the merge patch
// clears the field rather than setting it to "".
func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
