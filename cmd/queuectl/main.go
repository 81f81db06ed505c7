// queuectl is the operator tool for the email bridge: a live queue
// inspector, a compose form for one-off sends, supplier directory
// management and the audit log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/audit"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/bridge"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/credential"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/model"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/queue"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/theme"
	"github.com/faizalindrak/mass-email-sender-desktop/internal/ui/inspector"
)

const usage = `usage: queuectl [-config path] <command>

commands:
  inspect    browse the job queue (default)
  compose    send a one-off email through the bridge
  supplier   list suppliers, or "supplier add" for a new entry
  logs       show recent audit log entries
  password   store the SMTP password in the system keyring
`

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "inspect"
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "queuectl: %v\n", err)
		os.Exit(1)
	}

	if err := dispatchCommand(cmd, flag.Args(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "queuectl: %v\n", err)
		os.Exit(1)
	}
}

func dispatchCommand(cmd string, args []string, cfg *model.AppConfig) error {
	switch cmd {
	case "inspect":
		return runInspect(cfg)
	case "compose":
		return runCompose(cfg)
	case "supplier":
		if len(args) > 1 && args[1] == "add" {
			return runSupplierAdd(cfg)
		}
		return runSupplierList(cfg)
	case "logs":
		return runLogs(cfg)
	case "password":
		return runPassword()
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openQueue(cfg *model.AppConfig) (*queue.Store, error) {
	return queue.NewStore(cfg.Queue.Root, hostlog.Discard())
}

func runInspect(cfg *model.AppConfig) error {
	store, err := openQueue(cfg)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(inspector.New(store), tea.WithAltScreen()).Run()
	return err
}

// runCompose collects an email interactively, submits it as a job and
// waits for the verdict.
func runCompose(cfg *model.AppConfig) error {
	var to, cc, subject, body, attachment string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("comma-separated addresses").
				Value(&to).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one recipient is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Cc").
				Placeholder("optional").
				Value(&cc),
			huh.NewInput().
				Title("Subject").
				Value(&subject).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("subject is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Body (HTML)").
				Value(&body),
			huh.NewInput().
				Title("Attachment").
				Placeholder("path, optional").
				Value(&attachment),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	payload := model.EmailPayload{
		To:       splitAddresses(to),
		Cc:       splitAddresses(cc),
		Subject:  subject,
		BodyHTML: body,
	}
	if attachment != "" {
		payload.Attachments = []model.Attachment{{
			Path: attachment,
			Name: filepath.Base(attachment),
		}}
	}

	store, err := openQueue(cfg)
	if err != nil {
		return err
	}
	client := bridge.NewClient(store, hostlog.Discard())

	id, err := client.Submit(payload)
	if err != nil {
		return err
	}
	fmt.Printf("job %s submitted, waiting for the mail client...\n", id)

	timeout := 2 * time.Duration(cfg.Queue.ResponseTimeoutSec) * time.Second
	res, err := client.AwaitResolution(context.Background(), id, timeout)
	if err != nil {
		return err
	}

	if res.Success {
		fmt.Println(theme.OutcomeStyle("sent").Render("sent"), res.MessageID)
	} else {
		fmt.Println(theme.OutcomeStyle("failed").Render("failed"), res.Error)
	}
	return nil
}

func runSupplierAdd(cfg *model.AppConfig) error {
	var sup model.Supplier
	var emails, ccEmails string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Key").
				Placeholder("filename key, e.g. ACME").
				Value(&sup.Key).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("key is required")
					}
					return nil
				}),
			huh.NewInput().Title("Supplier code").Value(&sup.SupplierCode),
			huh.NewInput().Title("Supplier name").Value(&sup.SupplierName),
			huh.NewInput().Title("Contact name").Value(&sup.ContactName),
			huh.NewInput().
				Title("Emails").
				Placeholder("comma-separated").
				Value(&emails).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one email is required")
					}
					return nil
				}),
			huh.NewInput().Title("Cc emails").Placeholder("optional").Value(&ccEmails),
			huh.NewConfirm().Title("Active").Value(&sup.Active),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	sup.Emails = splitAddresses(emails)
	sup.CcEmails = splitAddresses(ccEmails)

	store, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertSupplier(context.Background(), sup); err != nil {
		return err
	}
	fmt.Printf("supplier %s saved\n", sup.Key)
	return nil
}

func runSupplierList(cfg *model.AppConfig) error {
	store, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	suppliers, err := store.GetSuppliers(context.Background(), true)
	if err != nil {
		return err
	}

	keyStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	for _, sup := range suppliers {
		status := ""
		if !sup.Active {
			status = theme.HelpStyle.Render(" (inactive)")
		}
		fmt.Printf("%s  %s <%s>%s\n",
			keyStyle.Render(sup.Key),
			sup.SupplierName,
			strings.Join(sup.Emails, ", "),
			status)
	}
	return nil
}

func runLogs(cfg *model.AppConfig) error {
	store, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := store.RecentLogs(context.Background(), 50)
	if err != nil {
		return err
	}

	for _, entry := range logs {
		line := fmt.Sprintf("%s  %s  %s  %s → %s",
			entry.SentAt.Local().Format("2006-01-02 15:04:05"),
			theme.OutcomeStyle(entry.Status).Render(entry.Status),
			entry.EmailClient,
			entry.Filename,
			strings.Join(entry.Recipients, ", "))
		if entry.ErrorMessage != "" {
			line += "  " + theme.HelpStyle.Render(entry.ErrorMessage)
		}
		fmt.Println(line)
	}
	return nil
}

// runPassword stores the SMTP password for the direct-send fallback.
func runPassword() error {
	var password string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("password must not be empty")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := credential.Set(credential.KeySMTPPassword, password); err != nil {
		return err
	}
	fmt.Println("password stored in keyring")
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
