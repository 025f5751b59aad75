package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/oversight-labs/opsgate/pkg/auditlog"
	"github.com/oversight-labs/opsgate/pkg/classifier"
	"github.com/oversight-labs/opsgate/pkg/config"
	"github.com/oversight-labs/opsgate/pkg/contracts"
	"github.com/oversight-labs/opsgate/pkg/gate"
	"github.com/oversight-labs/opsgate/pkg/lifecycle"
	"github.com/oversight-labs/opsgate/pkg/observability"
	"github.com/oversight-labs/opsgate/pkg/policy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "check":
		err = runCheck(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("opsgate %s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: opsgate <command> [flags]

Commands:
  check    evaluate one command under a role and print the verdict
  extract  print candidate commands found in an AI response file
  verify   verify the hash chains of an audit database`)
}

// runCheck evaluates a single command through the full pipeline with an
// in-memory queue and ledger, printing the evaluation as JSON.
func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	roleName := fs.String("role", "supervised", "agent role tier")
	env := fs.String("env", "development", "deployment environment")
	agentID := fs.String("agent", "cli", "agent id")
	paramList := fs.String("params", "", "comma-separated name=value parameters")
	profilePath := fs.String("profile", "", "policy profile YAML (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: opsgate check [flags] <command>")
	}
	command := strings.Join(fs.Args(), " ")

	role, err := contracts.ParseRole(*roleName)
	if err != nil {
		return err
	}
	params, err := parseParams(*paramList)
	if err != nil {
		return err
	}

	profile, err := config.LoadProfile(*profilePath)
	if err != nil {
		return err
	}
	opts, err := profile.EngineOptions()
	if err != nil {
		return err
	}

	obs, err := observability.New(context.Background(), nil)
	if err != nil {
		return err
	}

	engine := policy.NewEngine(opts...)
	queue := lifecycle.NewManager(lifecycle.NewMemoryStore())
	ledger := auditlog.NewLedger(auditlog.NewMemoryStore(),
		auditlog.WithFailureHandler(func(_ contracts.AuditEvent, _ error) {
			obs.RecordAuditFailure(context.Background())
		}))
	g := gate.New(engine, queue, ledger, gate.WithObservability(obs))

	ectx := contracts.ExecutionContext{
		AgentID:     *agentID,
		Role:        role,
		Environment: contracts.Environment(*env),
		SessionID:   "cli",
	}

	ev, err := g.EvaluateCommand(context.Background(), ectx, command, params, "cli check")
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runExtract prints the commands found in a response file, one per
// line, in order of appearance.
func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: opsgate extract <response-file>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, cmd := range classifier.ExtractCommands(string(data)) {
		fmt.Println(cmd)
	}
	return nil
}

// runVerify walks every partition chain in an audit database and
// reports compromised events. Exit status 1 means at least one chain
// failed.
func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Arg(0)
	if path == "" {
		path = config.Load().AuditDBPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := auditlog.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	ledger := auditlog.NewLedger(store)

	ctx := context.Background()
	partitions, err := store.Partitions(ctx)
	if err != nil {
		return err
	}

	broken := 0
	for _, p := range partitions {
		compromised, err := ledger.VerifyChain(ctx, p)
		if err != nil {
			return err
		}
		if len(compromised) == 0 {
			fmt.Printf("ok\t%s\n", p)
			continue
		}
		broken++
		for _, id := range compromised {
			fmt.Printf("COMPROMISED\t%s\t%s\n", p, id)
		}
	}
	if broken > 0 {
		os.Exit(1)
	}
	fmt.Printf("verified %d partitions\n", len(partitions))
	return nil
}

func parseParams(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("bad parameter %q, want name=value", pair)
		}
		params[name] = value
	}
	return params, nil
}
