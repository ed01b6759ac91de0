package quadapk

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Debug signing credential, shared with the SDK's own tooling. This is
// a well-known development key, not a production identity.
const (
	debugKeystoreName = "debug.keystore"
	debugStorePass    = "android"
	debugKeyAlias     = "androidebugkey"
	debugKeyDname     = "CN=Android Debug,O=Android,C=US"
)

// ensureDebugKeystore returns the path of the per-user debug keystore,
// generating it with keytool on first use. The existence check is not
// atomic; two first-time builds racing here is tolerated.
func ensureDebugKeystore(exe *Executor, keytool, homeDir string) (string, error) {
	androidDir := filepath.Join(homeDir, ".android")
	if err := os.MkdirAll(androidDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", androidDir, err)
	}
	path := filepath.Join(androidDir, debugKeystoreName)
	if fileExists(path) {
		return path, nil
	}

	stepf("Generating debug keystore %s\n", path)
	cmd := exec.Command(keytool,
		"-genkey", "-v",
		"-keystore", path,
		"-storepass", debugStorePass,
		"-alias", debugKeyAlias,
		"-keypass", debugStorePass,
		"-dname", debugKeyDname,
		"-keyalg", "RSA",
		"-keysize", "2048",
		"-validity", "10000",
	)
	if err := exe.RunTool(cmd); err != nil {
		return "", fmt.Errorf("keytool failed: %w", err)
	}
	return path, nil
}
