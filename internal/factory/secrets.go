package factory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
)

// Keys in the generated per-cluster secrets.
const (
	KeyClusterAdminUser     = "clusterAdminUsername"
	KeyClusterAdminPassword = "clusterAdminPassword"
	KeyRouterUser           = "routerUsername"
	KeyRouterPassword       = "routerPassword"
	KeyBackupUser           = "backupUsername"
	KeyBackupPassword       = "backupPassword"
)

const (
	clusterAdminUser = "mysqladmin"
	routerUser       = "mysqlrouter"
	backupUser       = "mysqlbackup"

	passwordBytes = 24
)

func generatePassword() (string, error) {
	raw := make([]byte, passwordBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ensureClusterSecret creates the secret holding the administrative account
// the operator and sidecars use against the servers. Created once; the
// generated password is never rotated by the reconcile loop.
func (m *Manager) ensureClusterSecret(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	password, err := generatePassword()
	if err != nil {
		return err
	}

	secret := &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      ClusterSecretName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			KeyClusterAdminUser:     clusterAdminUser,
			KeyClusterAdminPassword: password,
		},
	}

	return m.createIfAbsent(ctx, secret, cluster)
}

// ensureRouterSecret creates the account routers use to talk to the
// cluster's metadata schema.
func (m *Manager) ensureRouterSecret(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	password, err := generatePassword()
	if err != nil {
		return err
	}

	secret := &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      RouterSecretName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			KeyRouterUser:     routerUser,
			KeyRouterPassword: password,
		},
	}

	return m.createIfAbsent(ctx, secret, cluster)
}

// ensureBackupSecret creates the account backup jobs authenticate with. It
// is created last; nothing mounts it until a backup actually runs.
func (m *Manager) ensureBackupSecret(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	password, err := generatePassword()
	if err != nil {
		return err
	}

	secret := &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      BackupSecretName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Type: corev1.SecretTypeOpaque,
		StringData: map[string]string{
			KeyBackupUser:     backupUser,
			KeyBackupPassword: password,
		},
	}

	return m.createIfAbsent(ctx, secret, cluster)
}
