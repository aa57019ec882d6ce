// Command trekctl walks one participant through registration from a terminal.
// Progress is kept under app.state_dir so each invocation resumes the flow.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"trekreg/cmd/buildCFG"
	"trekreg/internal/auth"
	"trekreg/internal/client"
	"trekreg/internal/model"
	"trekreg/internal/workflow"
)

const usage = `usage: trekctl [-config config.yaml] [-api URL] <command>

commands:
  status          show the current step
  submit FILE     submit the registration form read from a JSON file
  back            return from payment to the form
  pay             complete payment and issue the ticket
  verify          reconcile local progress with the server
  reset           forget local progress and start over
  hash-password   read a password from stdin and print its admin.password_hash
`

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	apiURL := flag.String("api", "", "registration API base URL, defaults to app.public_url")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if flag.Arg(0) == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	zlog.Init()
	log := zlog.Logger

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}
	cfg := config.New()
	if err := cfg.Load(*configPath, "", "TREK"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	appCfg, err := buildCFG.BuildAppConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app config")
	}

	base := *apiURL
	if base == "" {
		base = appCfg.PublicURL
	}
	if base == "" {
		log.Fatal().Msg("no API URL: pass -api or set app.public_url")
	}
	stateDir := appCfg.StateDir
	if stateDir == "" {
		stateDir = ".trekreg"
	}
	store, err := workflow.NewFileStore(stateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state directory")
	}

	w := workflow.New(store, client.New(base, &log), &log,
		workflow.WithEventName(appCfg.EventName),
		workflow.WithTicketHook(func(t workflow.Ticket) {
			fmt.Printf("🎉 You're going to %s! Ticket %s\n", appCfg.EventName, t.TicketID)
		}),
	)
	if _, err := w.Resume(); err != nil {
		log.Fatal().Err(err).Msg("failed to restore progress")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, w, flag.Args()); err != nil {
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w *workflow.Workflow, args []string) error {
	switch args[0] {
	case "status":
		printStatus(w)
		return nil
	case "submit":
		if len(args) < 2 {
			return errors.New("submit needs a form file")
		}
		form, err := readForm(args[1])
		if err != nil {
			return err
		}
		if err := w.Submit(ctx, form); err != nil {
			return err
		}
	case "back":
		if err := w.Back(); err != nil {
			return err
		}
	case "pay":
		if _, err := w.Pay(ctx); err != nil {
			return err
		}
	case "verify":
		if _, err := w.Verify(ctx); err != nil {
			return err
		}
	case "reset":
		if err := w.Reset(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	printStatus(w)
	return nil
}

func hashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func readForm(path string) (model.RegistrationForm, error) {
	form := model.DefaultForm()
	b, err := os.ReadFile(path)
	if err != nil {
		return form, err
	}
	if err := json.Unmarshal(b, &form); err != nil {
		return form, fmt.Errorf("parse %s: %w", path, err)
	}
	return form, nil
}

func printStatus(w *workflow.Workflow) {
	fmt.Println("step:", w.State())
	if s := w.Submission(); s != nil && s.RegistrationID != "" {
		fmt.Println("registration:", s.RegistrationID)
	}
	if t := w.Ticket(); t != nil {
		fmt.Printf("ticket: %s (synced: %t)\n", t.TicketID, t.Synced)
	}
}
