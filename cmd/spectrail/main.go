// Command spectrail is the host shell spec.md §1 calls "external": the CLI
// that drives the Core's two entry points (generate_plan, verify_task)
// alongside the minimal Project/Task bookkeeping the Core needs to run at
// all.
//
// Grounded on cmd/eai/main.go's root-command and subcommand wiring
// (cobra.Command tree, flags bound to package-level vars, RunE closures).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spectrail/internal/coreerr"
	"spectrail/internal/dbstore"
	"spectrail/internal/model"
	"spectrail/internal/runlog"
	"spectrail/internal/settings"
	"spectrail/internal/settingsfile"
	"spectrail/internal/store"
	"spectrail/internal/workflow"
)

const version = "0.1.0"

var (
	dbPath       string
	settingsPath string
)

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "spectrail.db"
	}
	return filepath.Join(home, ".spectrail", "spectrail.db")
}

// openFacade opens the shared database, seeds bootstrap Settings on a
// first run (detected by LoadSnapshot failing closed for lack of
// credentials), and wires a workflow.Facade.
func openFacade(ctx context.Context) (*workflow.Facade, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, err
	}
	db, err := dbstore.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	settingsStore := settings.New(db)
	projectStore := store.New(db)
	log := runlog.New(db)

	if _, err := settingsStore.LoadSnapshot(ctx); err != nil && coreerr.ToEnvelope(err).Code == "INVALID_CREDENTIALS" {
		if bootstrap, ok, ferr := settingsfile.Load(settingsPath); ferr == nil && ok {
			_ = settingsStore.BulkUpsert(ctx, bootstrap.ToPairs())
		}
	}

	facade := workflow.New(settingsStore, projectStore, log)
	return facade, db.Close, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	root := &cobra.Command{
		Use:     "spectrail",
		Short:   "SpecTrail workbench core: generate implementation plans and verify task completion",
		Version: version,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the SpecTrail SQLite database")
	root.PersistentFlags().StringVar(&settingsPath, "settings-file", "", "path to a bootstrap settings YAML file (seeded on first run only)")

	root.AddCommand(
		newPlanCmd(),
		newVerifyCmd(),
		newSettingsCmd(),
		newProjectCmd(),
		newTaskCmd(),
		newRunCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <project-id> <task-id>",
		Short: "Generate an implementation plan for a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			facade, closeDB, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := facade.GeneratePlan(ctx, args[0], args[1])
			if err != nil {
				env := coreerr.ToEnvelope(err)
				printJSON(env)
				return fmt.Errorf("generate_plan failed: %s", env.Code)
			}
			printJSON(result)
			return nil
		},
	}
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var opts workflow.VerifyOptions
	cmd := &cobra.Command{
		Use:   "verify <project-id> <task-id>",
		Short: "Verify a task's current repository state against its plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			facade, closeDB, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := facade.VerifyTask(ctx, args[0], args[1], opts)
			if err != nil {
				env := coreerr.ToEnvelope(err)
				printJSON(env)
				return fmt.Errorf("verify_task failed: %s", env.Code)
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Staged, "staged", false, "diff staged changes instead of the working tree")
	cmd.Flags().BoolVar(&opts.RunTests, "tests", false, "run the detected test command before verifying")
	cmd.Flags().BoolVar(&opts.RunLint, "lint", false, "run the detected lint command before verifying")
	cmd.Flags().BoolVar(&opts.RunBuild, "build", false, "run the detected build command before verifying")
	cmd.Flags().IntVar(&opts.MaxToolCalls, "max-tool-calls", 0, "cap on pre-fetch calls (git status/diff + checks); 0 uses the default of 8")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Inspect or update provider Settings"}

	// settings are read/written directly against the Settings store,
	// bypassing the Facade: a KV get/set needs none of its wiring.
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a Settings value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			value, err := settings.New(db).Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key>=<value> [<key>=<value>...]",
		Short: "Update one or more Settings values atomically",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs := make(map[string]string)
			for _, arg := range args {
				key, value, ok := splitKV(arg)
				if !ok {
					return fmt.Errorf("invalid key=value pair: %q", arg)
				}
				pairs[key] = value
			}
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return settings.New(db).BulkUpsert(ctx, pairs)
		},
	})
	return cmd
}

func splitKV(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage Projects"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <repo-path>",
		Short: "Register a repository as a Project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			absRepo, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			project, err := store.New(db).CreateProject(ctx, args[0], absRepo)
			if err != nil {
				return err
			}
			printJSON(project)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List Projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			projects, err := store.New(db).ListProjects(ctx)
			if err != nil {
				return err
			}
			printJSON(projects)
			return nil
		},
	})
	return cmd
}

// newRunCmd exposes spec.md §6's list_messages and list_tool_calls read
// queries against a Run produced by a prior plan/verify call.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "run", Short: "Inspect a past Run's transcript"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list-messages <run-id>",
		Short: "List the messages persisted for a Run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			facade, closeDB, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			messages, err := facade.ListMessages(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(messages)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list-tool-calls <run-id>",
		Short: "List the tool calls persisted for a Run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			facade, closeDB, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			calls, err := facade.ListToolCalls(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(calls)
			return nil
		},
	})
	return cmd
}

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage Tasks"}
	var mode string
	addCmd := &cobra.Command{
		Use:   "add <project-id> <title>",
		Short: "Create a Task under a Project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			taskMode := model.TaskModePlan
			switch mode {
			case "phases":
				taskMode = model.TaskModePhases
			case "review":
				taskMode = model.TaskModeReview
			}
			task, err := store.New(db).CreateTask(ctx, args[0], args[1], taskMode)
			if err != nil {
				return err
			}
			printJSON(task)
			return nil
		},
	}
	addCmd.Flags().StringVar(&mode, "mode", "plan", "task mode: plan|phases|review")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list <project-id>",
		Short: "List Tasks for a Project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dbstore.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			tasks, err := store.New(db).ListTasks(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(tasks)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list-artifacts <task-id>",
		Short: "List the Artifacts recorded for a Task (list_artifacts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			facade, closeDB, err := openFacade(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			artifacts, err := facade.ListArtifacts(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(artifacts)
			return nil
		},
	})
	return cmd
}
