package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/ochronus/storageportal/internal/app"
	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/ochronus/storageportal/internal/transfer"
	"github.com/ochronus/storageportal/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// withContainer wraps a command body with container setup and teardown.
func withContainer(run func(cmd *cobra.Command, args []string, c *app.Container) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		container, err := newContainer()
		if err != nil {
			return err
		}
		defer container.Close()
		return run(cmd, args, container)
	}
}

func userCommands() []*cobra.Command {
	var username string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session token",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			if username == "" {
				var err error
				username, err = utils.PromptLine(os.Stdin, os.Stdout, "Username: ")
				if err != nil {
					return err
				}
			}
			password, err := utils.PromptPassword(os.Stdout, "Password: ")
			if err != nil {
				return err
			}

			sess, err := utils.Login(cmd.Context(), c.Client, c.Sessions, portal.Credentials{Username: username, Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Printf("Logged in to %s as %s\n", c.Client.BaseURL(), sess.Username)
			return nil
		}),
	}
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when empty)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the token",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			_, err := c.Client.Logout(cmd.Context())
			if err != nil && !portal.IsUnauthorized(err) {
				c.Logger.Warnf("logout request failed: %v", err)
			}
			if err := c.Sessions.Clear(c.Client.BaseURL()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		}),
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			token, err := utils.CurrentToken(c.Sessions, c.Client)
			if err != nil {
				return err
			}
			info, err := c.Client.GetInfo(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Printf("Name:  %s\n", info.Data.Name)
			fmt.Printf("Roles: %s\n", strings.Join(info.Data.Roles, ", "))
			if info.Data.Introduction != "" {
				fmt.Printf("About: %s\n", info.Data.Introduction)
			}
			return nil
		}),
	}

	passwdCmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			oldPassword, err := utils.PromptPassword(os.Stdout, "Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := utils.PromptPassword(os.Stdout, "New password: ")
			if err != nil {
				return err
			}
			confirm, err := utils.PromptPassword(os.Stdout, "Repeat new password: ")
			if err != nil {
				return err
			}
			if newPassword == "" || newPassword != confirm {
				return errors.New("new passwords are empty or do not match")
			}

			_, err = c.Client.ChangePassword(cmd.Context(), portal.PasswordChange{OldPassword: oldPassword, NewPassword: newPassword})
			if err != nil {
				return fmt.Errorf("failed to change password: %w", err)
			}
			fmt.Println("Password changed")
			return nil
		}),
	}

	sitesCmd := &cobra.Command{
		Use:   "sites",
		Short: "List storage sites",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			resp, err := c.Client.GetSites(cmd.Context(), nil)
			if err != nil {
				return err
			}
			for _, site := range resp.Data.Items {
				marker := " "
				for _, s := range resp.Data.Selected {
					if s == site {
						marker = "*"
					}
				}
				fmt.Printf("%s %s\n", marker, site)
			}
			return nil
		}),
	}

	return []*cobra.Command{loginCmd, logoutCmd, whoamiCmd, passwdCmd, sitesCmd, strategyCommand()}
}

func strategyCommand() *cobra.Command {
	strategyCmd := &cobra.Command{
		Use:   "strategy",
		Short: "Show or replace the storage strategy",
	}

	var asYAML bool
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current strategy",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			resp, err := c.Client.GetStrategy(cmd.Context())
			if err != nil {
				return err
			}

			var out []byte
			if asYAML {
				out, err = yaml.Marshal(resp.Data)
			} else {
				out, err = json.MarshalIndent(resp.Data, "", "  ")
				out = append(out, '\n')
			}
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		}),
	}
	getCmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML instead of JSON")

	var file string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the strategy with the content of a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			doc, err := utils.LoadDocument(file)
			if err != nil {
				return err
			}
			if _, err := c.Client.SetStrategy(cmd.Context(), doc); err != nil {
				return err
			}
			fmt.Println("Strategy updated")
			return nil
		}),
	}
	setCmd.Flags().StringVarP(&file, "file", "f", "", "Strategy document (.yaml, .yml or .json)")
	_ = setCmd.MarkFlagRequired("file")

	strategyCmd.AddCommand(getCmd, setCmd)
	return strategyCmd
}

func storageCommands() []*cobra.Command {
	var queryPairs []string
	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List files",
		Args:  cobra.NoArgs,
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			query, err := utils.ParseQuery(queryPairs)
			if err != nil {
				return err
			}
			resp, err := c.Client.ListFiles(cmd.Context(), query)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED\tLOCATION")
			for _, f := range resp.Data.Items {
				modified := ""
				if !f.LastModified.IsZero() {
					modified = f.LastModified.Format(portal.TimestampLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Filename, f.Size, modified, strings.Join(f.Location, ","))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d of %d files\n", len(resp.Data.Items), resp.Data.Total)
			return nil
		}),
	}
	lsCmd.Flags().StringArrayVarP(&queryPairs, "query", "q", nil, "Query parameter as key=value (repeatable)")

	uploadCmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			var mu sync.Mutex
			jobs := make([]transfer.Job, 0, len(args))
			for _, path := range args {
				jobs = append(jobs, transfer.Job{
					Direction: transfer.DirectionUpload,
					Path:      path,
					OnProgress: func(ev portal.ProgressEvent) {
						mu.Lock()
						defer mu.Unlock()
						fmt.Printf("%s: %d%%\n", path, ev.Percent)
					},
				})
			}

			manager := transfer.NewManager(c.Config, c.Logger, c.Client)
			return report(manager.Run(cmd.Context(), jobs))
		}),
	}

	var output string
	var force bool
	downloadCmd := &cobra.Command{
		Use:   "download NAME",
		Short: "Download a file",
		Args:  cobra.ExactArgs(1),
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			manager := transfer.NewManager(c.Config, c.Logger, c.Client, transfer.WithOverwrite(force))
			return report(manager.Run(cmd.Context(), []transfer.Job{
				{Direction: transfer.DirectionDownload, Name: args[0], Path: output},
			}))
		}),
	}
	downloadCmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default: the file name)")
	downloadCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing destination")

	linkCmd := &cobra.Command{
		Use:   "link NAME",
		Short: "Print a direct download link",
		Long:  "Print a direct download link. The link embeds the session token and grants access to anyone holding it until the token expires.",
		Args:  cobra.ExactArgs(1),
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			token, err := utils.CurrentToken(c.Sessions, c.Client)
			if err != nil {
				return err
			}
			fmt.Println(c.Client.GenDownloadLink(args[0], token))
			return nil
		}),
	}

	rmCmd := &cobra.Command{
		Use:   "rm NAME",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: withContainer(func(cmd *cobra.Command, args []string, c *app.Container) error {
			if _, err := c.Client.DeleteFile(cmd.Context(), args[0]); err != nil {
				if portal.IsNotFound(err) {
					return fmt.Errorf("%s does not exist", args[0])
				}
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		}),
	}

	return []*cobra.Command{lsCmd, uploadCmd, downloadCmd, linkCmd, rmCmd}
}

// report prints one line per result and fails when any job failed.
func report(results []transfer.Result) error {
	failed := 0
	for _, r := range results {
		switch r.Status {
		case transfer.StatusDone:
			fmt.Printf("%s %s: %d bytes\n", r.Job.Direction, r.Job.Name, r.Bytes)
		case transfer.StatusSkipped:
			fmt.Printf("%s %s: skipped (%v)\n", r.Job.Direction, r.Job.Name, r.Err)
		default:
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", r.Job.Direction, r.Job.Name, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(results))
	}
	return nil
}
