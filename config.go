package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
)

// Application configuration.
type config struct {
	ListenAddr     string
	DBPath         string
	SignerURL      string
	LedgerURL      string
	PinURL         string
	PinToken       string
	IdentityURL    string
	RegistryURL    string
	OperatorKey    string
	MetadataKey    []byte
	AllowedOrigins []string
	Debug          bool
}

func validateURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s argument: %v", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s argument: invalid scheme '%s'", name, u.Scheme)
	}
	return nil
}

// Parse command-line arguments.
// Returns a config struct with the parsed arguments.
func parseArguments() (config, error) {
	addr := flag.String("addr", "0.0.0.0:8080", "Address on which to listen to HTTP requests")
	dbPath := flag.String("db-path", "db.sqlite3", "sqlite3 database path")
	signerURL := flag.String("signer-url", "http://127.0.0.1:8100", "URL for the signer/ledger proxy REST API")
	ledgerURL := flag.String("ledger-url", "http://127.0.0.1:8200", "URL for the ledger node REST API")
	pinURL := flag.String("pin-url", "https://api.pinata.cloud", "URL for the metadata pinning service")
	pinToken := flag.String("pin-token", "", "Bearer token for the metadata pinning service")
	identityURL := flag.String("identity-url", "http://127.0.0.1:8300", "URL for the identity resolver REST API")
	registryURL := flag.String("registry-url", "http://127.0.0.1:8400", "URL for the issuer registry REST API")
	operatorKey := flag.String("operator-key", "", "Hex-encoded private key of the node operator account")
	metadataKey := flag.String("metadata-key", "", "Hex-encoded 32-byte key used to encrypt credential metadata")
	allowedOrigins := flag.String("allowed-origins", "*", "Comma-separated list of allowed CORS origins")
	debug := flag.Bool("debug", false, "Whether to enable verbose logging")
	flag.Parse()

	for name, value := range map[string]string{
		"-signer-url":   *signerURL,
		"-ledger-url":   *ledgerURL,
		"-pin-url":      *pinURL,
		"-identity-url": *identityURL,
		"-registry-url": *registryURL,
	} {
		if err := validateURL(name, value); err != nil {
			return config{}, err
		}
	}

	if *operatorKey == "" {
		return config{}, errors.New("invalid -operator-key argument")
	}

	key, err := hex.DecodeString(strings.TrimPrefix(*metadataKey, "0x"))
	if err != nil || len(key) != 32 {
		return config{}, errors.New("invalid -metadata-key argument: expected 32 hex-encoded bytes")
	}

	return config{
		ListenAddr:     *addr,
		DBPath:         *dbPath,
		SignerURL:      *signerURL,
		LedgerURL:      *ledgerURL,
		PinURL:         *pinURL,
		PinToken:       *pinToken,
		IdentityURL:    *identityURL,
		RegistryURL:    *registryURL,
		OperatorKey:    *operatorKey,
		MetadataKey:    key,
		AllowedOrigins: strings.Split(*allowedOrigins, ","),
		Debug:          *debug,
	}, nil
}
