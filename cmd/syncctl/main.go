// Command syncctl is an operator CLI for the clinsync server. It can mint
// test tokens, stage device exports into the local SQLite store, and exercise
// the sync and migration endpoints from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/therappio/clinsync/internal/adapter"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/internal/utils"
	"github.com/therappio/clinsync/models"
)

const usage = `usage: syncctl [flags] <command>

commands:
  ping      check server availability
  token     mint a bearer token for testing
  stage     load a JSON device export into the local SQLite store
  pull      download changes made by other devices
  resolve   resolve an open sync conflict
  status    show migration eligibility and queue state
  request   ask the server to queue a migration
`

type cliFlags struct {
	server     string
	token      string
	deviceID   string
	appVersion string
	timeout    time.Duration

	// token command
	userID  int64
	role    string
	signKey string
	issuer  string
	ttl     time.Duration

	// stage command
	localDB    string
	exportFile string

	// pull command
	since       string
	entityTypes string

	// resolve command
	conflictID string
	strategy   string
	notes      string

	// request command
	priority int
}

func main() {
	flags, command := parseFlags()
	log := logger.NewLogger("syncctl")

	if err := run(context.Background(), command, flags, log); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func parseFlags() (*cliFlags, string) {
	flags := &cliFlags{}

	flag.StringVar(&flags.server, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&flags.token, "token", os.Getenv("SYNCCTL_TOKEN"), "bearer token (env: SYNCCTL_TOKEN)")
	flag.StringVar(&flags.deviceID, "device", "syncctl", "device identifier reported to the server")
	flag.StringVar(&flags.appVersion, "app-version", "", "application version reported to the rollout gates")
	flag.DurationVar(&flags.timeout, "timeout", 15*time.Second, "request timeout")

	flag.Int64Var(&flags.userID, "user", 0, "token: subject user ID")
	flag.StringVar(&flags.role, "role", "", "token: role claim")
	flag.StringVar(&flags.signKey, "sign-key", os.Getenv("SYNCCTL_SIGN_KEY"), "token: signing key (env: SYNCCTL_SIGN_KEY)")
	flag.StringVar(&flags.issuer, "issuer", "clinsync", "token: issuer claim")
	flag.DurationVar(&flags.ttl, "ttl", 24*time.Hour, "token: lifetime")

	flag.StringVar(&flags.localDB, "db", "clinsync_local.db", "stage: local SQLite path")
	flag.StringVar(&flags.exportFile, "file", "", "stage: JSON device export path")

	flag.StringVar(&flags.since, "since", "", "pull: RFC3339 checkpoint")
	flag.StringVar(&flags.entityTypes, "types", "", "pull: comma-separated entity types")

	flag.StringVar(&flags.conflictID, "conflict", "", "resolve: conflict ID")
	flag.StringVar(&flags.strategy, "strategy", "", "resolve: resolution strategy")
	flag.StringVar(&flags.notes, "notes", "", "resolve: resolution notes")

	flag.IntVar(&flags.priority, "priority", 0, "request: queue priority (lower runs first)")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	return flags, flag.Arg(0)
}

func run(ctx context.Context, command string, flags *cliFlags, log *logger.Logger) error {
	switch command {
	case "token":
		return mintToken(flags)
	case "stage":
		return stageExport(ctx, flags, log)
	}

	gateway, err := adapter.NewHTTPServerGateway(adapter.GatewayConfig{
		HTTPAddress:    flags.server,
		RequestTimeout: flags.timeout,
	}, log)
	if err != nil {
		return err
	}
	gateway.SetToken(flags.token)

	switch command {
	case "ping":
		version, err := gateway.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("server is up, version %s\n", version)
		return nil
	case "pull":
		return pullChanges(ctx, gateway, flags)
	case "resolve":
		return resolveConflict(ctx, gateway, flags)
	case "status":
		status, err := gateway.MigrationStatus(ctx, flags.appVersion)
		if err != nil {
			return err
		}
		return printJSON(status)
	case "request":
		response, err := gateway.RequestMigration(ctx, models.MigrationRequest{Priority: flags.priority}, flags.appVersion)
		if err != nil {
			return err
		}
		return printJSON(response)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func mintToken(flags *cliFlags) error {
	if flags.userID == 0 {
		return fmt.Errorf("token: -user is required")
	}
	if flags.signKey == "" {
		return fmt.Errorf("token: -sign-key is required")
	}

	token, err := utils.GenerateJWTToken(flags.issuer, flags.userID, flags.role, flags.ttl, flags.signKey)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// deviceExport is the JSON shape produced by the device export tooling.
type deviceExport struct {
	Patients []models.Patient    `json:"patients"`
	Sessions []models.Session    `json:"sessions"`
	Files    []models.FileRecord `json:"files"`
}

func stageExport(ctx context.Context, flags *cliFlags, log *logger.Logger) error {
	if flags.exportFile == "" {
		return fmt.Errorf("stage: -file is required")
	}

	raw, err := os.ReadFile(flags.exportFile)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	var export deviceExport
	if err = json.Unmarshal(raw, &export); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}

	local, err := store.NewLocalSQLite(flags.localDB, log)
	if err != nil {
		return err
	}
	defer local.Close()

	for i := range export.Patients {
		if err = local.StagePatient(ctx, &export.Patients[i]); err != nil {
			return fmt.Errorf("stage patient %s: %w", export.Patients[i].PatientID, err)
		}
	}
	for i := range export.Sessions {
		if err = local.StageSession(ctx, &export.Sessions[i]); err != nil {
			return fmt.Errorf("stage session %s: %w", export.Sessions[i].SessionID, err)
		}
	}
	for i := range export.Files {
		if err = local.StageFile(ctx, &export.Files[i]); err != nil {
			return fmt.Errorf("stage file %s: %w", export.Files[i].FileID, err)
		}
	}

	fmt.Printf("staged %d patients, %d sessions, %d files into %s\n",
		len(export.Patients), len(export.Sessions), len(export.Files), flags.localDB)
	return nil
}

func pullChanges(ctx context.Context, gateway adapter.ServerGateway, flags *cliFlags) error {
	since := time.Time{}
	if flags.since != "" {
		parsed, err := time.Parse(time.RFC3339, flags.since)
		if err != nil {
			return fmt.Errorf("pull: invalid -since: %w", err)
		}
		since = parsed
	}

	var entityTypes []models.EntityType
	if flags.entityTypes != "" {
		for _, name := range strings.Split(flags.entityTypes, ",") {
			entityType := models.EntityType(strings.TrimSpace(name))
			if !entityType.Valid() {
				return fmt.Errorf("pull: unknown entity type %q", name)
			}
			entityTypes = append(entityTypes, entityType)
		}
	}

	response, err := gateway.Pull(ctx, flags.deviceID, since, entityTypes)
	if err != nil {
		return err
	}

	return printJSON(response)
}

func resolveConflict(ctx context.Context, gateway adapter.ServerGateway, flags *cliFlags) error {
	if flags.conflictID == "" {
		return fmt.Errorf("resolve: -conflict is required")
	}

	conflict, err := gateway.Resolve(ctx, models.ResolveRequest{
		ConflictID:         flags.conflictID,
		ResolutionStrategy: models.ResolutionStrategy(flags.strategy),
		ResolutionNotes:    flags.notes,
		DeviceID:           flags.deviceID,
	})
	if err != nil {
		return err
	}

	return printJSON(conflict)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
