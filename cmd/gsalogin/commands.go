package main

import (
	"bufio"
	"fmt"
	"time"

	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/devportal"
	"github.com/appuploader/grandslam/gsa"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newLoginCommand(g *globals) *cobra.Command {
	var blobFile string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := g.identity(blobFile)
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			password, err := readPassword(in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			acct := account.New(g.email, identity, g.cfg.AccountOptions())
			if err := acct.Login(password, stdinCodes(in, cmd.OutOrStdout())); err != nil {
				return err
			}
			if err := g.store.Save(acct.Snapshot()); err != nil {
				return err
			}
			g.accounts.Put(acct)
			log.Infof("signed in as %s (adsid %s)", g.email, acct.Session().Adsid)
			fmt.Fprintln(cmd.OutOrStdout(), "login succeeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&blobFile, "adi-pb", "", "provisioning blob of a new device identity")
	return cmd
}

func newTokenCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "token [app id]",
		Short: "Print an application token of the saved session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := gsa.AppIDXcode
			if len(args) == 1 {
				appID = args[0]
			}
			acct, err := g.restore()
			if err != nil {
				return err
			}
			token, err := acct.AppToken(appID)
			if err != nil {
				return err
			}
			if err := g.store.Save(acct.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\texpires %s\n", appID, token.Token,
				time.UnixMilli(token.Expiry).Format(time.RFC3339))
			return nil
		},
	}
}

func newTeamsCommand(g *globals) *cobra.Command {
	var host string
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List the developer teams of the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := g.restore()
			if err != nil {
				return err
			}
			teams, err := devportal.NewClient(acct, host).ListTeams()
			if err != nil {
				return err
			}
			if err := g.store.Save(acct.Snapshot()); err != nil {
				return err
			}
			for _, t := range teams {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tfree=%v\n", t.TeamId, t.Name, t.Type, t.XcodeFreeOnly())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "portal", devportal.DefaultHost, "developer services host")
	return cmd
}
