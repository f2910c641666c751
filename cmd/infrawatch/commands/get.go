package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrawatch/infrawatch/internal/api"
	"github.com/infrawatch/infrawatch/internal/credentials"
	"github.com/infrawatch/infrawatch/internal/model"
	"github.com/infrawatch/infrawatch/internal/version"
)

// getFlags are shared by every get subcommand.
type getFlags struct {
	server      string
	credentials string
	output      string
	limit       int
	offset      int
	timeout     time.Duration
}

func getCmd() *cobra.Command {
	f := &getFlags{}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "List services, deployments, resources or teams from a running API",
	}
	cmd.PersistentFlags().StringVar(&f.server, "server", "", "API base URL (default: realtime.url)")
	cmd.PersistentFlags().StringVar(&f.credentials, "credentials", "", "credentials file (default: the user config dir)")
	cmd.PersistentFlags().StringVarP(&f.output, "output", "o", "table", "output format: table or json")
	cmd.PersistentFlags().IntVar(&f.limit, "limit", 0, "page size")
	cmd.PersistentFlags().IntVar(&f.offset, "offset", 0, "page offset")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		getServicesCmd(f),
		getDeploymentsCmd(f),
		getResourcesCmd(f),
		getTeamsCmd(f),
	)
	return cmd
}

// client builds an API client from flags, config and stored credentials.
func (f *getFlags) client() (*api.Client, error) {
	switch f.output {
	case "table", "json":
	default:
		return nil, fmt.Errorf("invalid --output %q", f.output)
	}

	cfg, err := loadClientConfig(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	server := f.server
	if server == "" {
		server = cfg.Realtime.URL
	}

	path := f.credentials
	if path == "" {
		path = cfg.Realtime.CredentialsFile
	}
	if path == "" {
		path = credentials.DefaultPath()
	}
	creds, err := credentials.Load(path)
	if err != nil {
		return nil, err
	}
	token, ok := creds.Token()
	if !ok {
		return nil, errNoCredential
	}

	return api.NewClient(server, token,
		api.WithTimeout(f.timeout),
		api.WithUserAgent("infrawatch-cli/"+version.Version),
		api.WithLogger(logger.With("component", "api_client")),
	), nil
}

func (f *getFlags) page() api.ListOptions {
	return api.ListOptions{Limit: f.limit, Offset: f.offset}
}

func getServicesCmd(f *getFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "services",
		Aliases: []string{"service", "svc"},
		Short:   "List services",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			res, err := c.ListServices(cmd.Context(), f.page())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), f.output, res, servicesTable)
		},
	}
}

func getDeploymentsCmd(f *getFlags) *cobra.Command {
	var serviceID, status string
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment", "deploy"},
		Short:   "List deployments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			res, err := c.ListDeployments(cmd.Context(), api.DeploymentListOptions{
				ListOptions: f.page(),
				ServiceID:   serviceID,
				Status:      status,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), f.output, res, deploymentsTable)
		},
	}
	cmd.Flags().StringVar(&serviceID, "service", "", "only deployments of this service ID")
	cmd.Flags().StringVar(&status, "status", "", "only deployments in this status")
	return cmd
}

func getResourcesCmd(f *getFlags) *cobra.Command {
	var serviceID, resourceType, region string
	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"resource", "res"},
		Short:   "List infrastructure resources",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			res, err := c.ListResources(cmd.Context(), api.ResourceListOptions{
				ListOptions:  f.page(),
				ServiceID:    serviceID,
				ResourceType: resourceType,
				Region:       region,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), f.output, res, resourcesTable)
		},
	}
	cmd.Flags().StringVar(&serviceID, "service", "", "only resources of this service ID")
	cmd.Flags().StringVar(&resourceType, "type", "", "only resources of this type, e.g. ec2")
	cmd.Flags().StringVar(&region, "region", "", "only resources in this AWS region")
	return cmd
}

func getTeamsCmd(f *getFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "teams",
		Aliases: []string{"team"},
		Short:   "List teams",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.client()
			if err != nil {
				return err
			}
			res, err := c.ListTeams(cmd.Context(), f.page())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), f.output, res, teamsTable)
		},
	}
}

// render writes res as indented JSON or as an aligned table.
func render[T any](out io.Writer, format string, res *api.ListResult[T], table func(io.Writer, []T)) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Items)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	table(tw, res.Items)
	if err := tw.Flush(); err != nil {
		return err
	}
	p := res.Pagination
	fmt.Fprintf(out, "\n%d shown (limit %d, offset %d)\n", p.Count, p.Limit, p.Offset)
	return nil
}

func servicesTable(w io.Writer, items []model.Service) {
	fmt.Fprintln(w, "ID\tNAME\tENVIRONMENT\tREGION\tSTATUS")
	for _, s := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Environment, s.AWSRegion, s.Status)
	}
}

func deploymentsTable(w io.Writer, items []model.Deployment) {
	fmt.Fprintln(w, "ID\tSERVICE\tVERSION\tENVIRONMENT\tSTATUS\tSTARTED")
	for _, d := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.ServiceID, d.Version, d.Environment, d.Status, d.StartedAt.Format(time.RFC3339))
	}
}

func resourcesTable(w io.Writer, items []model.InfrastructureResource) {
	fmt.Fprintln(w, "ID\tTYPE\tRESOURCE ID\tNAME\tREGION\tSTATUS")
	for _, r := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.ResourceType, r.ResourceID, r.Name, r.Region, r.Status)
	}
}

func teamsTable(w io.Writer, items []model.Team) {
	fmt.Fprintln(w, "ID\tNAME\tEMAIL")
	for _, t := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Name, t.Email)
	}
}

