package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/platform"
)

func newSessionCmd(factory ComponentFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored browser sessions",
	}
	cmd.AddCommand(newSessionImportCmd(factory))
	cmd.AddCommand(newSessionShowCmd(factory))
	return cmd
}

func newSessionImportCmd(factory ComponentFactory) *cobra.Command {
	var platformName, userID string
	cmd := &cobra.Command{
		Use:   "import <exported-cookies.json>",
		Short: "Store cookies exported from a browser extension as a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := platform.Lookup(platformName)
			if err != nil {
				return err
			}
			s, err := factory.CookieStore(config.Get())
			if err != nil {
				return err
			}
			cookies, ok := s.LoadExportedFile(p.Name, userID, args[0])
			if !ok {
				return fmt.Errorf("could not import %s (see log for details)", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cookies for %s/%s.\n", len(cookies), p.Name, userID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&platformName, "platform", "p", platform.Foodpanda.Name, "platform the cookies belong to")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to store the session under")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSessionShowCmd(factory ComponentFactory) *cobra.Command {
	var platformName, userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the cookies of a stored session (values are not printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := platform.Lookup(platformName)
			if err != nil {
				return err
			}
			s, err := factory.CookieStore(config.Get())
			if err != nil {
				return err
			}
			cookies, ok, err := s.Load(p.Name, userID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No stored session for %s/%s.\n", p.Name, userID)
				return nil
			}
			return printCookieTable(cmd.OutOrStdout(), cookies)
		},
	}
	cmd.Flags().StringVarP(&platformName, "platform", "p", platform.Foodpanda.Name, "platform of the session")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id of the session")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printCookieTable(out io.Writer, cookies []schemas.Cookie) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDOMAIN\tPATH\tSAMESITE\tEXPIRES")
	for _, c := range cookies {
		expires := "session"
		if c.Expires != nil {
			expires = time.Unix(int64(*c.Expires), 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Domain, c.Path, c.SameSite, expires)
	}
	return w.Flush()
}
