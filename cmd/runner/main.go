// Package main is the entrypoint for the command runner (binary name "runner").
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/command-runner/internal/config"
	"github.com/morezero/command-runner/internal/server"
	"github.com/morezero/command-runner/pkg/db"
	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const usage = `Usage: runner [command]
       runner serve [deployment.json]                   Start a peer (NATS, HTTP introspection).
       runner migrate up                                Run database migrations.
       runner migrate status                            Show migration status.
       runner clear                                     Truncate stored error records; schema is preserved.
       runner errors [fqn] [page]                       List stored error records.
       runner call <peer[@host]|-> <service> <command> [param-json]
                                                        Send one command and print the reply.

Commands:
  serve           (default) Start a peer serving the commands its deployment exposes.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  clear           Delete stored error records.
  errors          List stored error records, newest first.
  call            Call a built-in service command on a remote peer; "-" picks any peer exposing it.

Environment: COMMS_URL, PEER_ID, PEER_HOSTS, DATABASE_URL (optional for serve), MIGRATION_PATH,
RUNNER_HTTP_ADDR, RUNNER_DEPLOYMENT_FILE, RUNNER_REQUEST_TIMEOUT, WIRE_CODEC, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("runner migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("runner migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("runner migrate status: %v", err)
			}
		default:
			log.Fatalf("runner migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("runner clear: %v", err)
		}
		return
	case "errors":
		if err := runErrors(args[1:]); err != nil {
			log.Fatalf("runner errors: %v", err)
		}
		return
	case "call":
		if err := runCall(args[1:]); err != nil {
			log.Fatalf("runner call: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	deployment := ""
	if len(args) > 1 {
		deployment = args[1]
	}
	if err := server.Run(deployment); err != nil {
		log.Fatalf("runner: %v", err)
	}
}

func withDB(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withDB(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runMigrateStatus() error {
	return withDB(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		exists, files, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
		if err != nil {
			return err
		}
		fmt.Printf("Migration files: %d\nerror_records table present: %v\n", files, exists)
		return nil
	})
}

func runClear() error {
	return withDB(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		if err := db.ClearErrorRecords(ctx, pool); err != nil {
			return fmt.Errorf("clear error records: %w", err)
		}
		return nil
	})
}

func runErrors(args []string) error {
	params := db.ListErrorRecordsParams{Page: 1, Limit: 50}
	if len(args) > 0 {
		params.FQN = args[0]
	}
	if len(args) > 1 {
		page, err := strconv.Atoi(args[1])
		if err != nil || page < 1 {
			return fmt.Errorf("invalid page %q", args[1])
		}
		params.Page = page
	}
	return withDB(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		records, total, err := db.NewRepository(pool).ListErrorRecords(ctx, params)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s  %s  %s  %s\n", r.Created.Format(time.RFC3339), r.ID, r.FQN, r.Message)
		}
		fmt.Printf("%d of %d record(s)\n", len(records), total)
		return nil
	})
}

// parseCallArgs reads "<peer[@host]|-> <service> <command> [param-json]".
// The host defaults to defaultHost. A peer of "-" leaves the destination
// empty so server.Call picks a peer exposing the command.
func parseCallArgs(args []string, defaultHost string) (messaging.PeerAddress, *server.CallRequest, error) {
	if len(args) < 3 {
		return messaging.PeerAddress{}, nil, fmt.Errorf("require <peer[@host]|-> <service> <command> [param-json]")
	}

	var dest messaging.PeerAddress
	if args[0] != "-" {
		var err error
		if dest, err = parsePeerArg(args[0], defaultHost); err != nil {
			return messaging.PeerAddress{}, nil, err
		}
	}

	req := &server.CallRequest{Service: valueobject.FQN(args[1]), Command: args[2]}
	if len(args) > 3 {
		if !json.Valid([]byte(args[3])) {
			return messaging.PeerAddress{}, nil, fmt.Errorf("parameter is not valid JSON")
		}
		req.Param = json.RawMessage(args[3])
	}
	return dest, req, nil
}

func parsePeerArg(arg, defaultHost string) (messaging.PeerAddress, error) {
	dest := messaging.PeerAddress{PeerID: messaging.PeerID(arg), Host: defaultHost}
	if i := strings.Index(arg, "@"); i >= 0 {
		dest.PeerID = messaging.PeerID(arg[:i])
		dest.Host = arg[i+1:]
	}
	if dest.PeerID == "" {
		return messaging.PeerAddress{}, fmt.Errorf("peer id is empty")
	}
	return dest, nil
}

func runCall(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)

	dest, req, err := parseCallArgs(args, cfg.COMMSURL)
	if err != nil {
		return err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := server.Call(ctx, cfg, dest, req)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if res.Failure {
		os.Exit(2)
	}
	return nil
}
