package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"pawnchain/cmd/internal/passphrase"
	"pawnchain/crypto"
	"pawnchain/observability/logging"
)

const (
	keygenCommand   = "keygen"
	addressCommand  = "address"
	simulateCommand = "simulate"
	defaultPassEnv  = "PAWN_KEYSTORE_PASSPHRASE"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:])
	case addressCommand:
		err = runAddress(os.Args[2:])
	case simulateCommand:
		err = runSimulate(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	out := fs.String("out", "party.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase (prompts when unset)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *out)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	logger := logging.Setup("pawnctl", "")
	logger.Info("keystore written",
		slog.String("keystore", *out),
		slog.String("address", key.Address().Hex()),
		logging.MaskField("passphrase", pass))
	fmt.Println(key.Address().Hex())
	return nil
}

func runAddress(args []string) error {
	fs := flag.NewFlagSet(addressCommand, flag.ExitOnError)
	path := fs.String("keystore", "party.keystore", "Keystore file to open")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase (prompts when unset)")
	fs.Parse(args)

	pass, err := passphrase.NewSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		return err
	}
	fmt.Println(key.Address().Hex())
	return nil
}

func runSimulate(args []string) error {
	fs := flag.NewFlagSet(simulateCommand, flag.ExitOnError)
	scenarioPath := fs.String("scenario", "", "YAML scenario file (defaults to the built-in bootstrap scenario)")
	level := fs.String("log-level", "info", "Log level")
	fs.Parse(args)

	logger, err := logging.SetupWithOptions(logging.Options{Service: "pawnctl", Env: "simulate", Level: *level})
	if err != nil {
		return err
	}
	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}
	out, err := Simulate(context.Background(), sc, logger)
	if err != nil {
		return err
	}
	return printReport(os.Stdout, out)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pawnctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s    generate a party key and seal it in a keystore\n", keygenCommand)
	fmt.Fprintf(os.Stderr, "  %s   print the address held by a keystore\n", addressCommand)
	fmt.Fprintf(os.Stderr, "  %s  run a loan and rollover scenario on an in-memory deployment\n", simulateCommand)
}
