// Command spendwise-token issues and revokes personal API tokens.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"spendwise/internal/auth"
	"spendwise/internal/backend"
	"spendwise/internal/cli"
	"spendwise/internal/store"
)

const usage = `Usage:
  spendwise-token issue  -owner <owner> [-label <label>] [-prompt] [store flags]
  spendwise-token revoke -id <token id> [store flags]`

func main() {
	cli.LoadEnvFile()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type storeFlags struct {
	backend, dbPath, mongoURI, mongoDB string
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.backend, "backend", envOr("DATA_BACKEND", "sqlite"), "Store backend: sqlite or mongo")
	fs.StringVar(&f.dbPath, "db", envOr("SQLITE_DB_PATH", "./data/spendwise.db"), "Path to SQLite database file")
	fs.StringVar(&f.mongoURI, "mongo-uri", os.Getenv("MONGO_URI"), "MongoDB connection URI")
	fs.StringVar(&f.mongoDB, "mongo-db", envOr("MONGO_DATABASE", "spendwise"), "MongoDB database name")
}

func (f *storeFlags) open(ctx context.Context) (*backend.BackendResult, error) {
	bt := backend.BackendType(f.backend)
	if bt == backend.MemoryBackend {
		return nil, errors.New("tokens in the memory backend would be lost on exit, use sqlite or mongo")
	}
	// Keep the factory quiet; this is a CLI.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return backend.NewFactory(logger).CreateBackend(ctx, backend.Config{
		Type:          bt,
		SQLiteDBPath:  f.dbPath,
		MongoURI:      f.mongoURI,
		MongoDatabase: f.mongoDB,
	})
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return errors.New("missing command")
	}
	ctx := context.Background()

	switch args[0] {
	case "issue":
		return runIssue(ctx, args[1:], stdin, stdout, stderr)
	case "revoke":
		return runRevoke(ctx, args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return flag.ErrHelp
	default:
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runIssue(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "Owner ID the token authenticates as")
	label := fs.String("label", "", "Free-form label, e.g. the device name")
	prompt := fs.Bool("prompt", false, "Prompt for the secret instead of generating one")
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*owner) == "" {
		fs.PrintDefaults()
		return errors.New("missing required flag: owner")
	}

	var secret string
	if *prompt {
		fmt.Fprintf(stdout, "Secret (min %d characters): ", auth.MinSecretLength)
		var err error
		secret, err = readSecret(stdin)
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		fmt.Fprintln(stdout)
		if secret == "" {
			return errors.New("secret cannot be empty")
		}
	}

	res, err := sf.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore(res)

	raw, tok, err := auth.IssueToken(ctx, res.Store, strings.TrimSpace(*owner), *label, secret)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Token %s issued for %s. It is shown only once:\n%s\n", tok.ID, tok.Owner, raw)
	return nil
}

func runRevoke(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "Token ID to revoke")
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		fs.PrintDefaults()
		return errors.New("missing required flag: id")
	}

	res, err := sf.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore(res)

	if err := res.Store.RevokeToken(ctx, *id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("token %s not found", *id)
		}
		return err
	}
	fmt.Fprintf(stdout, "Token %s revoked\n", *id)
	return nil
}

func closeStore(res *backend.BackendResult) {
	if res.Cleanup != nil {
		_ = res.Cleanup()
	}
}

func readSecret(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
