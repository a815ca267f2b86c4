package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/policy"
	"github.com/mtzanidakis/hive/internal/vault"
)

func runVault(w io.Writer, args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("HIVE_VAULT_PASSPHRASE environment variable or vault.passphrase is required")
	}
	return vaultCommand(w, vault.New(cfg.Vault.Passphrase), args)
}

func vaultCommand(w io.Writer, v *vault.Vault, args []string) error {
	fs := flag.NewFlagSet("vault "+args[0], flag.ContinueOnError)
	kind := fs.String("type", string(policy.SensitivityCredential), "sensitivity type")
	value := fs.String("value", "", "value to seal (JSON or plain string)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	sens := policy.NormalizeSensitivity(*kind)

	switch args[0] {
	case "seal":
		if *value == "" {
			return fmt.Errorf("--value is required")
		}
		var in any
		if err := json.Unmarshal([]byte(*value), &in); err != nil {
			in = *value
		}
		out, err := v.Sanitize(in, sens)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
		return nil
	case "unseal":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: hive vault unseal [--type T] <sealed>")
		}
		out, err := v.Unseal(fs.Arg(0), sens)
		if err != nil {
			return err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: hive vault <command>

Commands:
  seal --value <v> [--type T]      Seal a value for sensitivity type T
  unseal [--type T] <sealed>       Reveal a sealed value

Environment:
  HIVE_VAULT_PASSPHRASE            Required. Encryption passphrase.
`)
}
