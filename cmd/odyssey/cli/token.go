package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// TokenOptions defines the flags of `odyssey token`.
type TokenOptions struct {
	Subject    string
	Role       string
	TTL        time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TokenCommand mints a bearer token for local testing and returns the exit code.
func TokenCommand(cfg auth.Config, opts TokenOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	subject, err := uuid.Parse(opts.Subject)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "token: invalid --sub %q (expected uuid)\n", opts.Subject)
		return 2
	}
	role := shared.Role(opts.Role)
	if role != shared.RoleAdmin && role != shared.RoleCustomer {
		_, _ = fmt.Fprintf(opts.Stderr, "token: invalid --role %q (admin|customer)\n", opts.Role)
		return 2
	}
	if opts.TTL > 0 {
		cfg.TTL = opts.TTL
	}
	raw, err := auth.NewTokens(cfg).Issue(shared.Actor{UserID: subject, Role: role})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "token: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(map[string]string{"token": raw, "role": string(role)})
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stdout, raw)
	return 0
}
