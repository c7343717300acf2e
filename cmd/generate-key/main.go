// Command generate-key creates a new faucet wallet and stores its private key
// in the local .env file.
package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new wallet for the faucet",
	Args:  cobra.NoArgs,
	RunE:  run,
}

var flag = struct {
	EnvFile     string
	ExampleFile string
	DryRun      bool
}{}

var pkLine = regexp.MustCompile(`(?m)^PK=.*$`)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func init() {
	cmd.Flags().StringVar(&flag.EnvFile, "env", ".env", "Environment file to update")
	cmd.Flags().StringVar(&flag.ExampleFile, "example", ".env.example", "Template used when the environment file does not exist")
	cmd.Flags().BoolVar(&flag.DryRun, "dry-run", false, "Print the new key without writing it")
}

func main() {
	if err := cmd.Execute(); err != nil {
		red.Fprintf(os.Stderr, "\nError generating wallet: %v\n", err)
		os.Exit(1)
	}
}

type wallet struct {
	Address    common.Address
	PrivateKey string
}

func newWallet() (wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return wallet{}, fmt.Errorf("generate key: %w", err)
	}

	return walletFromKey(key), nil
}

func walletFromKey(key *ecdsa.PrivateKey) wallet {
	return wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: fmt.Sprintf("%x", crypto.FromECDSA(key)),
	}
}

func run(c *cobra.Command, _ []string) error {
	out := c.OutOrStdout()
	rule := strings.Repeat("━", 80)

	cyan.Fprintln(out, "\nGenerating new wallet for Lux Faucet...")

	w, err := newWallet()
	if err != nil {
		return err
	}

	green.Fprintln(out, "\nWallet Generated Successfully!")
	cyan.Fprintln(out, rule)
	bold.Fprintln(out, "\nWallet Details:")
	yellow.Fprintf(out, "   Address:     %s\n", w.Address.Hex())
	red.Fprintf(out, "   Private Key: %s\n", w.PrivateKey)
	cyan.Fprintln(out, "\n"+rule)

	if !flag.DryRun {
		created, err := updateEnvFile(flag.EnvFile, flag.ExampleFile, w.PrivateKey)
		if err != nil {
			return err
		}
		if created {
			yellow.Fprintf(out, "\n%s file not found, created one\n", flag.EnvFile)
		}
		green.Fprintf(out, "\nUpdated %s with new private key!\n", flag.EnvFile)
	}

	printNextSteps(out, w, rule)
	return nil
}

// updateEnvFile writes PK="<pk>" into envPath. When envPath does not exist
// it is seeded from examplePath, or started empty. It reports whether
// envPath was created.
func updateEnvFile(envPath, examplePath, pk string) (bool, error) {
	created := false

	content, err := os.ReadFile(envPath)
	if errors.Is(err, os.ErrNotExist) {
		created = true
		content, err = os.ReadFile(examplePath)
		if errors.Is(err, os.ErrNotExist) {
			content, err = nil, nil
		}
	}
	if err != nil {
		return false, fmt.Errorf("read env file: %w", err)
	}

	line := fmt.Sprintf("PK=%q", pk)

	var updated string
	if loc := pkLine.FindIndex(content); loc != nil {
		updated = string(content[:loc[0]]) + line + string(content[loc[1]:])
	} else {
		updated = string(content)
		if updated != "" && !strings.HasSuffix(updated, "\n") {
			updated += "\n"
		}
		updated += line + "\n"
	}

	if err := os.WriteFile(envPath, []byte(updated), 0o600); err != nil {
		return false, fmt.Errorf("write env file: %w", err)
	}

	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(envPath, 0o600); err != nil {
		return false, fmt.Errorf("chmod env file: %w", err)
	}

	return created, nil
}

func printNextSteps(out io.Writer, w wallet, rule string) {
	cyan.Fprintln(out, "\nNext Steps:")
	yellow.Fprintln(out, "\n1. Fund this address with testnet tokens:")
	bold.Fprintf(out, "   %s\n", w.Address.Hex())

	yellow.Fprintln(out, "\n2. Get testnet tokens from:")
	cyan.Fprintln(out, "   • C-Chain Testnet: https://faucet.lux.network")
	cyan.Fprintln(out, "   • Or use the Lux Testnet Faucet")

	yellow.Fprintln(out, "\n3. Verify the chains in config.json match your funded networks")

	yellow.Fprintln(out, "\n4. Start the faucet:")
	green.Fprintln(out, "   go run .")

	cyan.Fprintln(out, "\n"+rule)
	red.Fprintln(out, "\nSECURITY WARNING:")
	red.Fprintln(out, "   • NEVER commit .env to git")
	red.Fprintln(out, "   • NEVER use mainnet private keys")
	red.Fprintln(out, "   • Keep this private key secure")
	cyan.Fprintln(out, "\n"+rule+"\n")
}
