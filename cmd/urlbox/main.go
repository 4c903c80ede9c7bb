// Command urlbox builds render URLs and signs or checks webhook payloads
// from the command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"urlbox/internal/engine/options"
	"urlbox/internal/engine/signing"
	"urlbox/internal/engine/webhooks"
	"urlbox/internal/platform/auth"
	"urlbox/internal/platform/config"
)

const usage = `usage: urlbox <command> [flags]

commands:
  url             print the render URL for key=value options
  sign-webhook    print a signature header for a webhook payload
  verify-webhook  check a signature header against a webhook payload
  token           mint an API token for the render API
`

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "url":
		err = runURL(args[1:], stdout, stderr)
	case "sign-webhook":
		err = runSignWebhook(args[1:], stdin, stdout, stderr)
	case "verify-webhook":
		err = runVerifyWebhook(args[1:], stdin, stdout, stderr)
	case "token":
		err = runToken(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "urlbox: %v\n", err)
		return 1
	}
	return 0
}

func runURL(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("url", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiKey := fs.String("key", os.Getenv("URLBOX_API_KEY"), "API key")
	apiSecret := fs.String("secret", os.Getenv("URLBOX_API_SECRET"), "API secret; adds a token to non-display URLs")
	host := fs.String("host", os.Getenv("URLBOX_API_HOST_NAME"), "Alternate API host, e.g. api-eu.urlbox.io")
	mode := fs.String("mode", "get", "get, head, delete or string")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *apiKey == "" {
		return errors.New("an API key is required (-key or URLBOX_API_KEY)")
	}

	m, err := parseMode(*mode)
	if err != nil {
		return err
	}

	opts, err := parseOptions(fs.Args())
	if err != nil {
		return err
	}

	signer := signing.NewSigner(signing.Credentials{APIKey: *apiKey, APISecret: *apiSecret}, *host)
	renderURL, err := signer.BuildURL(opts, m)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, renderURL)
	return nil
}

func runSignWebhook(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sign-webhook", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("URLBOX_WEBHOOK_SECRET"), "Webhook secret")
	file := fs.String("file", "-", "Payload file, - for stdin")
	timestamp := fs.Int64("t", 0, "Unix timestamp to sign with (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("a webhook secret is required (-secret or URLBOX_WEBHOOK_SECRET)")
	}

	payload, err := readPayload(*file, stdin)
	if err != nil {
		return err
	}

	ts := *timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	header, err := webhooks.SignHeader(*secret, ts, payload)
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	fmt.Fprintln(stdout, header)
	return nil
}

func runVerifyWebhook(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("verify-webhook", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("URLBOX_WEBHOOK_SECRET"), "Webhook secret")
	header := fs.String("header", "", "Value of the "+webhooks.SignatureHeader+" header")
	file := fs.String("file", "-", "Payload file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	payload, err := readPayload(*file, stdin)
	if err != nil {
		return err
	}

	if err := webhooks.Verify(*header, payload, *secret); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "signature ok")
	return nil
}

func runToken(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	subject := fs.String("subject", "cli", "Token subject")
	scopes := fs.String("scopes", strings.Join(auth.DefaultScopes, ","), "Comma separated scopes")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := auth.NewTokenService(config.JWTConfig{Secret: *secret, AccessTokenTTL: *ttl})
	token, err := svc.GenerateAccessToken(*subject, splitList(*scopes))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func parseMode(s string) (signing.Mode, error) {
	switch strings.ToLower(s) {
	case "get":
		return signing.ModeGet, nil
	case "head":
		return signing.ModeHead, nil
	case "delete":
		return signing.ModeDelete, nil
	case "string":
		return signing.ModeString, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// parseOptions turns key=value arguments into Options in the order given.
// A repeated key becomes a list; true/false become booleans and integers
// stay integers.
func parseOptions(args []string) (*options.Options, error) {
	opts := options.New()
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q is not key=value", arg)
		}
		value := scalar(raw)

		existing, seen := opts.Get(key)
		switch {
		case !seen:
			opts.Set(key, value)
		default:
			list, isList := existing.([]any)
			if !isList {
				list = []any{existing}
			}
			opts.Set(key, append(list, value))
		}
	}
	return opts, nil
}

func scalar(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
