// Command token-init prints a signed bearer token for local development.
//
//	token-init -sub alice -email alice@example.com -ttl 24h
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"metas/internal/cli"
	"metas/internal/config"
	"metas/internal/core"
	"metas/internal/middleware/auth"
)

type options struct {
	subject string
	email   string
	ttl     time.Duration
}

func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.subject, "sub", "", "user id placed in the sub claim")
	fs.StringVar(&o.email, "email", "", "email placed in the email claim")
	fs.DurationVar(&o.ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.subject == "" {
		return options{}, errors.New("-sub is required")
	}
	email, err := core.NormalizeEmail(o.email)
	if err != nil {
		return options{}, fmt.Errorf("-email: %w", err)
	}
	o.email = email
	if o.ttl <= 0 {
		return options{}, fmt.Errorf("-ttl must be positive, got %v", o.ttl)
	}
	return o, nil
}

func run(o options, secret string, out io.Writer, now time.Time) error {
	if len(secret) < config.MinJWTSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters", config.MinJWTSecretLength)
	}
	token, err := auth.Issue(secret, core.User{ID: o.subject, Email: o.email}, o.ttl, now)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func main() {
	cli.LoadEnvFile()

	o, err := parseOptions(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "token-init: %v\n", err)
		os.Exit(2)
	}
	if err := run(o, config.Load().JWTSecret, os.Stdout, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "token-init: %v\n", err)
		os.Exit(1)
	}
}
