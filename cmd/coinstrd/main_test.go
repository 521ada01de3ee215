package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"coinstr/crypto"
)

// newTestConfigPath returns a config path under a fresh temp dir. The first
// buildEngine call against it will lazily create a default config with no
// relays configured, so tests never attempt a real network dial.
func newTestConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "coinstr.toml")
}

func captureOutput(t *testing.T, args []string) (stdout, stderr string, code int) {
	t.Helper()
	outFile, err := os.CreateTemp(t.TempDir(), "stdout")
	require.NoError(t, err)
	errFile, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	defer outFile.Close()
	defer errFile.Close()

	code = run(args, outFile, errFile)

	_, err = outFile.Seek(0, 0)
	require.NoError(t, err)
	_, err = errFile.Seek(0, 0)
	require.NoError(t, err)

	var outBuf, errBuf bytes.Buffer
	_, err = outBuf.ReadFrom(outFile)
	require.NoError(t, err)
	_, err = errBuf.ReadFrom(errFile)
	require.NoError(t, err)

	return outBuf.String(), errBuf.String(), code
}

func TestRunVersionPrintsVersionString(t *testing.T) {
	stdout, _, code := captureOutput(t, []string{"version"})
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "coinstr")
}

func TestRunWithNoArgsPrintsUsageAndFails(t *testing.T) {
	_, stderr, code := captureOutput(t, []string{})
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "usage:")
}

func TestRunUnknownCommandFails(t *testing.T) {
	_, stderr, code := captureOutput(t, []string{"bogus"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown command")
}

func TestRunSavePolicyThenListPolicies(t *testing.T) {
	configPath := newTestConfigPath(t)

	cosigners := strings.Join([]string{
		genPubKeyHex(t),
		genPubKeyHex(t),
		genPubKeyHex(t),
	}, ",")

	stdout, stderr, code := captureOutput(t, []string{
		"save-policy",
		"-config", configPath,
		"-name", "vault",
		"-description", "family vault",
		"-descriptor", "wsh(multi(2,A,B,C))",
		"-cosigners", cosigners,
	})
	require.Equal(t, 0, code, "stderr: %s", stderr)
	require.NotEmpty(t, strings.TrimSpace(stdout))

	stdout, stderr, code = captureOutput(t, []string{"policies", "-config", configPath})
	require.Equal(t, 0, code, "stderr: %s", stderr)
	require.Contains(t, stdout, "vault")
	require.Contains(t, stdout, "2-of-3")
}

func TestRunSavePolicyRejectsMissingFlags(t *testing.T) {
	configPath := newTestConfigPath(t)
	_, stderr, code := captureOutput(t, []string{"save-policy", "-config", configPath})
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "required")
}

func TestRunSavePolicyRejectsInvalidCosignerHex(t *testing.T) {
	configPath := newTestConfigPath(t)
	_, stderr, code := captureOutput(t, []string{
		"save-policy",
		"-config", configPath,
		"-name", "vault",
		"-descriptor", "wsh(multi(1,A))",
		"-cosigners", "not-hex",
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "invalid cosigner key")
}

func genPubKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().String()
}
