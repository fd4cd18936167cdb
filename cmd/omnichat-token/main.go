// ABOUTME: CLI for minting client JWTs accepted by the gateway API
// ABOUTME: Reads the signing secret from the gateway config or a flag

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/omnichat/gateway/internal/auth"
	"github.com/omnichat/gateway/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: omnichat-token --user <id> [--ttl <duration>] [--secret <secret>]")
	fmt.Println()
	fmt.Println("Mints a bearer token for the gateway API. The signing secret is read")
	fmt.Println("from the gateway config unless --secret is given.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --user    user ID to place in the token subject (required)")
	fmt.Println("  --ttl     token lifetime, e.g. 24h or 30m (default 720h)")
	fmt.Println("  --secret  signing secret; overrides the config file")
}

func run(args []string) error {
	var userID, ttlRaw, secret string

	i := 0
	next := func(arg string) (string, error) {
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			return arg[eq+1:], nil
		}
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", arg)
		}
		i++
		return args[i], nil
	}

	for ; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || strings.HasPrefix(arg, "--user="):
			v, err := next(arg)
			if err != nil {
				return err
			}
			userID = v
		case arg == "--ttl" || strings.HasPrefix(arg, "--ttl="):
			v, err := next(arg)
			if err != nil {
				return err
			}
			ttlRaw = v
		case arg == "--secret" || strings.HasPrefix(arg, "--secret="):
			v, err := next(arg)
			if err != nil {
				return err
			}
			secret = v
		case arg == "help" || arg == "-h" || arg == "--help":
			usage()
			return nil
		default:
			usage()
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	if userID == "" {
		usage()
		return fmt.Errorf("--user is required")
	}

	ttl := 720 * time.Hour
	if ttlRaw != "" {
		parsed, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return fmt.Errorf("parsing --ttl: %w", err)
		}
		if parsed <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
		ttl = parsed
	}

	if secret == "" {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config (pass --secret to skip): %w", err)
		}
		secret = cfg.Auth.JWTSecret
	}
	if secret == "" {
		return fmt.Errorf("no signing secret configured")
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(userID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("user: %s  expires: %s\n", userID, time.Now().Add(ttl).Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

// getConfigPath mirrors the gateway's config resolution.
func getConfigPath() string {
	if envPath := os.Getenv("OMNICHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "omnichat", "gateway.yaml")
}
