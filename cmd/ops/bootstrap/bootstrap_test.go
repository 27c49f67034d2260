package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// stripeOKClient returns an HTTP mock that accepts any key probe.
func stripeOKClient() *mockHTTPClient {
	return &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return mockHTTPResponse(http.StatusOK, `{"id":"acct_test"}`), nil
		},
	}
}

// newBootstrapTestRunner wires a BootstrapRunner to the package mocks with
// the given stdin content and captures stderr for assertion.
func newBootstrapTestRunner(ssmMock *mockSSMClient, secretsMock *mockSecretsClient, tableMock *mockTableClient, stdin string) (*BootstrapRunner, *bytes.Buffer) {
	logger := discardLogger()
	stderr := &bytes.Buffer{}

	return &BootstrapRunner{
		SSM:       NewSSMManagerWithClient(ssmMock, logger),
		Secrets:   NewSecretsManagerWriterWithClient(secretsMock, logger),
		Table:     NewTableManagerWithClient(tableMock, logger),
		Validator: NewValidatorWithDeps(stripeOKClient()),
		Stdin:     strings.NewReader(stdin),
		Stderr:    stderr,
		TableName: "subscribers-dev",
	}, stderr
}

// ---------------------------------------------------------------------------
// Run tests
// ---------------------------------------------------------------------------

func TestRun_FreshEnvironment(t *testing.T) {
	ssmMock := &mockSSMClient{}
	secretsMock := &mockSecretsClient{}
	tableMock := &mockTableClient{}

	runner, stderr := newBootstrapTestRunner(ssmMock, secretsMock, tableMock, validTestKey+"\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(secretsMock.createCalls) != 1 {
		t.Errorf("expected the secret to be created, got %d calls", len(secretsMock.createCalls))
	}
	if len(ssmMock.putCalls) != 1 {
		t.Errorf("expected the table parameter to be written, got %d calls", len(ssmMock.putCalls))
	}
	if aws.ToString(ssmMock.putCalls[0].Value) != "subscribers-dev" {
		t.Errorf("parameter value = %q", aws.ToString(ssmMock.putCalls[0].Value))
	}
	if len(tableMock.createCalls) != 1 {
		t.Errorf("expected the table to be created, got %d calls", len(tableMock.createCalls))
	}

	out := stderr.String()
	if !strings.Contains(out, "[WRITTEN]") {
		t.Errorf("summary should report written steps:\n%s", out)
	}
	if !strings.Contains(out, "[CREATED]") {
		t.Errorf("summary should report the created table:\n%s", out)
	}
}

func TestRun_ExistingSecretSkipped(t *testing.T) {
	secretsMock := &mockSecretsClient{exists: true}

	// "s" answers the skip/overwrite prompt; no key input follows.
	runner, stderr := newBootstrapTestRunner(&mockSSMClient{}, secretsMock, &mockTableClient{}, "s\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(secretsMock.createCalls) != 0 || len(secretsMock.putCalls) != 0 {
		t.Error("skipped secret must not be written")
	}
	if !strings.Contains(stderr.String(), "[SKIPPED]") {
		t.Errorf("summary should report the skipped secret:\n%s", stderr.String())
	}
}

func TestRun_ExistingSecretOverwritten(t *testing.T) {
	secretsMock := &mockSecretsClient{exists: true}

	runner, _ := newBootstrapTestRunner(&mockSSMClient{}, secretsMock, &mockTableClient{},
		"o\n"+validTestKey+"\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(secretsMock.putCalls) != 1 {
		t.Errorf("expected a new secret version, got %d PutSecretValue calls", len(secretsMock.putCalls))
	}
}

func TestRun_ParameterAlreadyCurrent(t *testing.T) {
	ssmMock := &mockSSMClient{getFn: ssmValueResponse("subscribers-dev")}

	runner, stderr := newBootstrapTestRunner(ssmMock, &mockSecretsClient{}, &mockTableClient{},
		validTestKey+"\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ssmMock.putCalls) != 0 {
		t.Error("a parameter already holding the target value must not be rewritten")
	}
	if !strings.Contains(stderr.String(), "[EXISTS]") {
		t.Errorf("summary should report the unchanged parameter:\n%s", stderr.String())
	}
}

func TestRun_ParameterDriftRewritten(t *testing.T) {
	ssmMock := &mockSSMClient{getFn: ssmValueResponse("subscribers-old")}

	runner, _ := newBootstrapTestRunner(ssmMock, &mockSecretsClient{}, &mockTableClient{},
		validTestKey+"\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ssmMock.putCalls) != 1 {
		t.Fatalf("drifted parameter should be rewritten, got %d calls", len(ssmMock.putCalls))
	}
	if aws.ToString(ssmMock.putCalls[0].Value) != "subscribers-dev" {
		t.Errorf("rewritten value = %q", aws.ToString(ssmMock.putCalls[0].Value))
	}
}

func TestRun_SkipTableFlag(t *testing.T) {
	tableMock := &mockTableClient{}

	runner, stderr := newBootstrapTestRunner(&mockSSMClient{}, &mockSecretsClient{}, tableMock,
		validTestKey+"\n")
	runner.SkipTable = true

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tableMock.describeCalls != 0 || len(tableMock.createCalls) != 0 {
		t.Error("--skip-table must not touch DynamoDB")
	}
	if !strings.Contains(stderr.String(), "[SKIPPED]") {
		t.Errorf("summary should report the skipped table:\n%s", stderr.String())
	}
}

func TestRun_InvalidTableNameAborts(t *testing.T) {
	runner, _ := newBootstrapTestRunner(&mockSSMClient{}, &mockSecretsClient{}, &mockTableClient{},
		validTestKey+"\n")
	runner.TableName = "no spaces allowed"

	err := runner.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for invalid table name")
	}
	if !strings.Contains(err.Error(), "invalid table name") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_EmptyKeyThenSkip(t *testing.T) {
	secretsMock := &mockSecretsClient{}

	// Empty line at the key prompt, then "s" to skip the step.
	runner, _ := newBootstrapTestRunner(&mockSSMClient{}, secretsMock, &mockTableClient{},
		"\ns\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(secretsMock.createCalls) != 0 {
		t.Error("skipped step must not write the secret")
	}
}

func TestPromptSecret_RetriesOnInvalidKey(t *testing.T) {
	// A malformed key consumes one attempt; the next line is valid.
	runner, stderr := newBootstrapTestRunner(&mockSSMClient{}, &mockSecretsClient{}, &mockTableClient{},
		"sk_test_tooshort\n"+validTestKey+"\n")

	key, err := runner.promptSecret(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != validTestKey {
		t.Errorf("key = %q", key)
	}
	if !strings.Contains(stderr.String(), "Validation failed") {
		t.Errorf("operator should see the validation failure:\n%s", stderr.String())
	}
}

func TestPromptSecret_MaxRetriesExceeded(t *testing.T) {
	bad := strings.Repeat("sk_test_tooshort\n", maxRetries)
	runner, _ := newBootstrapTestRunner(&mockSSMClient{}, &mockSecretsClient{}, &mockTableClient{}, bad)

	_, err := runner.promptSecret(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "maximum retries") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPromptSkipOrOverwrite_RepromptsOnGarbage(t *testing.T) {
	runner, _ := newBootstrapTestRunner(&mockSSMClient{}, &mockSecretsClient{}, &mockTableClient{},
		"maybe\nOVERWRITE\n")

	choice, err := runner.promptSkipOrOverwrite()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choice != "overwrite" {
		t.Errorf("choice = %q", choice)
	}
}
