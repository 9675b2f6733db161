package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/config"
	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/storage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globals struct {
	configFile string
	email      string
	cfg        *config.Config
	store      storage.SnapshotStore
	accounts   *account.Store
}

func newRootCommand() *cobra.Command {
	g := &globals{accounts: account.NewStore()}
	cmd := &cobra.Command{
		Use:   "gsalogin",
		Short: "Apple GrandSlam account login tool",
		Long: `Signs in to an Apple ID through the GrandSlam authentication service, keeps the
resulting session on disk and issues per application tokens from it.

Anisette headers are fetched from an anisette server (see [Anisette] URL in the config).`,
		Example: `  # Sign in, answering the two factor prompt on stdin
  gsalogin -a dev@example.com login

  # Print the Xcode token of a saved session
  gsalogin -a dev@example.com token com.apple.gs.xcode.auth

  # List developer teams
  gsalogin -c gsalogin.toml -a dev@example.com teams`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if g.store == nil {
				return nil
			}
			return g.store.Close()
		},
	}
	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "configuration file")
	cmd.PersistentFlags().StringVarP(&g.email, "account", "a", "", "Apple ID email")
	cmd.MarkPersistentFlagRequired("account")

	cmd.AddCommand(newLoginCommand(g), newTokenCommand(g), newTeamsCommand(g))
	return cmd
}

func (g *globals) setup() error {
	var err error
	if g.configFile == "" {
		g.cfg = config.Default()
	} else if g.cfg, err = config.LoadFile(g.configFile); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	log.SetLevel(g.cfg.LogLevel())

	switch g.cfg.Storage.Kind {
	case config.StorageBolt:
		g.store, err = storage.NewBoltStore(g.cfg.Storage.Path)
	default:
		g.store, err = storage.NewFileStore(g.cfg.Storage.Path, g.cfg.Storage.Password)
	}
	return err
}

// restore returns the account held for the email, loading the saved session on first use.
func (g *globals) restore() (*account.Account, error) {
	return g.accounts.GetOrCreate(g.email, func() (*account.Account, error) {
		snap, err := g.store.Load(g.email)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no saved session for %s, run login first", g.email)
		}
		if err != nil {
			return nil, err
		}
		return account.Restore(*snap, g.cfg.AccountOptions())
	})
}

// identity reuses the device of a previous login so Apple keeps seeing the same machine.
func (g *globals) identity(blobFile string) (anisette.Identity, error) {
	snap, err := g.store.Load(g.email)
	if err == nil && blobFile == "" {
		return snap.Identity, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return anisette.Identity{}, err
	}
	var blob []byte
	if blobFile != "" {
		if blob, err = os.ReadFile(blobFile); err != nil {
			return anisette.Identity{}, err
		}
	}
	return anisette.NewIdentity(blob), nil
}

// stdinCodes asks for the security code on out and reads one line from in.
func stdinCodes(in io.Reader, out io.Writer) gsa.CodeProvider {
	reader := bufio.NewReader(in)
	return gsa.CodeProviderFunc(func(kind gsa.SecondFactor) (string, error) {
		fmt.Fprintf(out, "Enter the %s security code: ", kind)
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" && err != nil {
			return "", err
		}
		return line, nil
	})
}

func readPassword(in io.Reader, out io.Writer) (string, error) {
	if pw := os.Getenv("GSA_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" && err != nil {
		return "", err
	}
	return line, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
