package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// maxRetries is the maximum number of times the operator can retry entering
// a value before the bootstrap process aborts.
const maxRetries = 5

// errSkipped is a sentinel returned when the operator chooses to skip a
// step, allowing the runner to record it without writing anything.
var errSkipped = errors.New("step skipped by operator")

// BootstrapRunner orchestrates the provisioning steps. It is separated from
// main() to allow testing with injected dependencies.
type BootstrapRunner struct {
	SSM       *SSMManager
	Secrets   *SecretsManagerWriter
	Table     *TableManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// TableName is the subscribers table to provision and record in SSM.
	TableName string

	// SkipTable skips DynamoDB table creation when the table is managed by
	// infrastructure-as-code elsewhere.
	SkipTable bool

	// scanner is the shared line scanner for reading stdin throughout the
	// session. Lazily initialized on first use; a single scanner avoids
	// multiple bufio.Scanner instances consuming ahead and losing data
	// from the underlying reader.
	scanner *bufio.Scanner
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Secrets:   NewSecretsManagerWriter(bctx),
		Table:     NewTableManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

// stepResult records the outcome of one provisioning step.
type stepResult struct {
	Label  string
	Action string // "written", "skipped", "created", "exists"
	Target string
}

// Run executes the provisioning protocol:
//  1. Collect and verify the Stripe API key; store it in Secrets Manager.
//  2. Validate the table name and write it to the SSM parameter.
//  3. Create the DynamoDB table and enable TTL (unless --skip-table).
//
// Each step probes for existing state first so reruns are idempotent.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	var results []stepResult

	secretResult, err := r.provisionStripeSecret(ctx)
	if err != nil {
		return fmt.Errorf("stripe secret step failed: %w", err)
	}
	results = append(results, secretResult)

	paramResult, err := r.provisionTableParam(ctx)
	if err != nil {
		return fmt.Errorf("table parameter step failed: %w", err)
	}
	results = append(results, paramResult)

	tableResult, err := r.provisionTable(ctx)
	if err != nil {
		return fmt.Errorf("table step failed: %w", err)
	}
	results = append(results, tableResult)

	r.printSummary(results)
	return nil
}

// provisionStripeSecret prompts for the Stripe API key (masked), verifies it
// against the Stripe API, and stores it in Secrets Manager.
func (r *BootstrapRunner) provisionStripeSecret(ctx context.Context) (stepResult, error) {
	result := stepResult{Label: "Stripe API Key", Target: stripeSecretName}

	fmt.Fprintf(r.Stderr, "\n[1/3] Stripe API Key\n")

	exists, err := r.Secrets.SecretExists(ctx, stripeSecretName)
	if err != nil {
		return result, err
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Secret already exists: %s\n", stripeSecretName)

		choice, choiceErr := r.promptSkipOrOverwrite()
		if choiceErr != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", choiceErr)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	fmt.Fprintf(r.Stderr, `
  1. Go to Stripe Dashboard > Developers > API Keys.
  2. Copy the Secret Key (sk_...).
  3. Paste it here:

`)

	key, err := r.promptSecret(ctx)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if err := r.Secrets.WriteAPIKey(ctx, stripeSecretName, key); err != nil {
		return result, err
	}

	fmt.Fprintf(r.Stderr, "  Stored: %s\n", stripeSecretName)
	result.Action = "written"
	return result, nil
}

// provisionTableParam validates the table name and writes it to the SSM
// parameter the upsert Lambda resolves per invocation.
func (r *BootstrapRunner) provisionTableParam(ctx context.Context) (stepResult, error) {
	result := stepResult{Label: "Table Name Parameter", Target: tableNameParamPath}

	fmt.Fprintf(r.Stderr, "\n[2/3] Table Name Parameter\n")

	if vr := r.Validator.ValidateTableName(ctx, r.TableName); !vr.Valid {
		return result, fmt.Errorf("invalid table name: %s", vr.Message)
	}

	exists, err := r.SSM.ParameterExists(ctx, tableNameParamPath)
	if err != nil {
		return result, err
	}

	if exists {
		current, readErr := r.SSM.GetParameterValue(ctx, tableNameParamPath)
		if readErr == nil && current == r.TableName {
			fmt.Fprintf(r.Stderr, "  Parameter already set to %q.\n", current)
			result.Action = "exists"
			return result, nil
		}
		if readErr == nil {
			fmt.Fprintf(r.Stderr, "  Parameter currently %q, updating to %q.\n", current, r.TableName)
		}
	}

	if err := r.SSM.PutString(ctx, tableNameParamPath, r.TableName); err != nil {
		return result, err
	}

	fmt.Fprintf(r.Stderr, "  Stored: %s = %s\n", tableNameParamPath, r.TableName)
	result.Action = "written"
	return result, nil
}

// provisionTable creates the DynamoDB table and enables TTL.
func (r *BootstrapRunner) provisionTable(ctx context.Context) (stepResult, error) {
	result := stepResult{Label: "Subscribers Table", Target: r.TableName}

	fmt.Fprintf(r.Stderr, "\n[3/3] Subscribers Table\n")

	if r.SkipTable {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-table)\n")
		result.Action = "skipped"
		return result, nil
	}

	exists, err := r.Table.TableExists(ctx, r.TableName)
	if err != nil {
		return result, err
	}

	if err := r.Table.EnsureTable(ctx, r.TableName); err != nil {
		return result, err
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Table %q already exists; TTL verified.\n", r.TableName)
		result.Action = "exists"
	} else {
		fmt.Fprintf(r.Stderr, "  Table %q created with TTL on %s.\n", r.TableName, ttlAttribute)
		result.Action = "created"
	}

	return result, nil
}

// promptSecret reads and validates the Stripe API key, masking the input and
// retrying up to maxRetries times on validation failure.
func (r *BootstrapRunner) promptSecret(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		input, err := r.readSecretInput("  > ")
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			choice, choiceErr := r.promptSkipOrRetry()
			if choiceErr != nil {
				return "", fmt.Errorf("reading skip/retry choice: %w", choiceErr)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			// Re-prompt without consuming an attempt.
			attempt--
			continue
		}

		// Acknowledge receipt with length only; never echo the key.
		fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))

		vr := r.Validator.ValidateStripeKey(ctx, input)
		if !vr.Valid {
			fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
			if attempt < maxRetries {
				fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
			}
			continue
		}

		fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for Stripe API key", maxRetries)
}

// getScanner returns the shared line scanner, initializing it on first use.
func (r *BootstrapRunner) getScanner() *bufio.Scanner {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	return r.scanner
}

// scanLine reads a single line from the shared scanner. Returns io.EOF when
// input is exhausted.
func (r *BootstrapRunner) scanLine() (string, error) {
	s := r.getScanner()
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

// readSecretInput reads input without echoing it to the terminal. If stdin
// is a terminal, it uses golang.org/x/term to disable echo; otherwise
// (testing, piped input) it falls back to regular line reading.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}

	return r.scanLine()
}

// promptSkipOrOverwrite asks the operator whether to skip or overwrite an
// existing value. Returns "skip" or "overwrite".
func (r *BootstrapRunner) promptSkipOrOverwrite() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  [S]kip or [O]verwrite? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		choice := strings.TrimSpace(strings.ToLower(line))
		switch choice {
		case "s", "skip":
			return "skip", nil
		case "o", "overwrite":
			return "overwrite", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or 'O' to overwrite.\n")
		}
	}
}

// promptSkipOrRetry asks the operator whether to skip the current step or
// retry entering a value. Returns "skip" or "retry".
func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  No input received. [S]kip this step or [R]etry? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		choice := strings.TrimSpace(strings.ToLower(line))
		switch choice {
		case "s", "skip":
			return "skip", nil
		case "r", "retry":
			return "retry", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or 'R' to retry.\n")
		}
	}
}

// printSummary displays a table of all actions taken during the run.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	for _, res := range results {
		status := fmt.Sprintf("[%s]", strings.ToUpper(res.Action))
		fmt.Fprintf(r.Stderr, "  %-12s %-24s %s\n", status, res.Label, res.Target)
	}

	fmt.Fprintf(r.Stderr, "============================================================\n")
	fmt.Fprintf(r.Stderr, "\n")
	fmt.Fprintf(r.Stderr, "  Next step: Deploy the pipeline with SAM.\n")
	fmt.Fprintf(r.Stderr, "  Run: sam build && sam deploy --guided\n")
	fmt.Fprintf(r.Stderr, "\n")
}
