package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agencyhq/tenancy/pkg/config"
	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant/seed"
)

const (
	outText = "text"
	outJSON = "json"
)

var (
	errUnknownOutput = errors.New("unknown output format")
	errNoMigrations  = errors.New("store has no schema to migrate")
	errNoSharedCache = errors.New("domain changes need TENANT_CACHE_DRIVER=redis or TENANT_ADMIN_URL so tenantd sees them")
)

// cli carries the flags and the backend shared by every command.
type cli struct {
	open    opener
	out     io.Writer
	format  string
	envFile string
	verbose bool

	backend *backend
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	c := &cli{open: open, out: out}

	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operate tenant resolution and custom domains",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.format != outText && c.format != outJSON {
				return fmt.Errorf("%w: %q", errUnknownOutput, c.format)
			}
			if err := config.LoadEnv(nonEmpty(c.envFile)...); err != nil {
				return err
			}

			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			log := logger.New(logger.WithFormat(logger.FormatText), logger.WithLevel(level), logger.WithOutput(os.Stderr))

			b, err := c.open(cmd.Context(), log)
			if err != nil {
				return err
			}
			c.backend = b
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.backend == nil {
				return nil
			}
			return c.backend.close()
		},
	}

	root.PersistentFlags().StringVarP(&c.format, "out", "o", outText, "output format: text or json")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file loaded before reading configuration")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		c.resolveCmd(),
		c.domainsCmd(),
		c.seedCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <host>",
		Short: "Show the tenant a host resolves to, bypassing the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			h := c.backend.resolver.Parser().Classify(host)
			cfg, err := c.backend.resolver.Lookup(cmd.Context(), host)
			if err != nil {
				return err
			}
			matched := cfg != nil
			if !matched {
				cfg = c.backend.resolver.Default()
			}

			if c.format == outJSON {
				return c.json(map[string]any{
					"host":       host,
					"kind":       h.Kind,
					"identifier": h.Identifier,
					"matched":    matched,
					"tenant":     cfg,
				})
			}
			return c.table(func(w io.Writer) {
				fmt.Fprintf(w, "host\t%s\n", host)
				fmt.Fprintf(w, "kind\t%s\n", h.Kind)
				fmt.Fprintf(w, "identifier\t%s\n", h.Identifier)
				fmt.Fprintf(w, "matched\t%t\n", matched)
				fmt.Fprintf(w, "tenant\t%s (%s)\n", cfg.Slug, cfg.ID)
				fmt.Fprintf(w, "organization\t%s\n", cfg.OrganizationID)
				fmt.Fprintf(w, "tier\t%s\n", cfg.Tier)
				fmt.Fprintf(w, "modules\t%v\n", cfg.EnabledModules)
			})
		},
	}
}

func (c *cli) domainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Inspect and manage custom domains",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every hostname the platform serves",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				domains, err := c.backend.verifier.ListRegisteredDomains(cmd.Context())
				if err != nil {
					return err
				}
				if c.format == outJSON {
					return c.json(domains)
				}
				for _, d := range domains {
					fmt.Fprintln(c.out, d)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "claims",
			Short: "List instances with a pending or verified custom domain",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				claims, err := c.backend.verifier.DomainClaims(cmd.Context())
				if err != nil {
					return err
				}
				if c.format == outJSON {
					return c.json(claims)
				}
				return c.table(func(w io.Writer) {
					fmt.Fprintln(w, "INSTANCE\tSLUG\tDOMAIN\tSTATE\tVERIFIED AT\tTOKEN")
					for _, cl := range claims {
						verifiedAt := "-"
						if cl.VerifiedAt != nil {
							verifiedAt = cl.VerifiedAt.UTC().Format(time.RFC3339)
						}
						token := cl.VerificationToken
						if token == "" {
							token = "-"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", cl.InstanceID, cl.Slug, cl.Domain, cl.State, verifiedAt, token)
					}
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count custom domains by state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				stats, err := c.backend.verifier.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if c.format == outJSON {
					return c.json(stats)
				}
				fmt.Fprintf(c.out, "total=%d verified=%d pending=%d\n", stats.Total, stats.Verified, stats.Pending)
				return nil
			},
		},
		&cobra.Command{
			Use:   "claim <instance-id> <domain>",
			Short: "Record a pending custom domain and print its verification token",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !c.backend.invalidates {
					return errNoSharedCache
				}
				token, err := c.backend.verifier.ClaimDomain(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if c.format == outJSON {
					return c.json(map[string]any{"success": true, "verification_token": token})
				}
				fmt.Fprintln(c.out, token)
				return nil
			},
		},
		&cobra.Command{
			Use:   "verify <instance-id> <domain>",
			Short: "Mark a pending custom domain as verified",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !c.backend.invalidates {
					return errNoSharedCache
				}
				if err := c.backend.verifier.Verify(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				if c.format == outJSON {
					return c.json(map[string]any{"verified": true, "instance_id": args[0], "domain": args[1]})
				}
				fmt.Fprintf(c.out, "verified %s for %s\n", args[1], args[0])
				return nil
			},
		},
	)
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert organizations and instances from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := seed.Load(file)
			if err != nil {
				return err
			}
			res, err := seed.Apply(cmd.Context(), c.backend.store, doc, time.Now)
			if err != nil {
				return err
			}
			if c.format == outJSON {
				return c.json(res)
			}
			fmt.Fprintf(c.out, "seeded %d organizations, %d instances\n", res.Organizations, res.Instances)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.backend.migrate == nil {
				return errNoMigrations
			}
			if err := c.backend.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		},
	}
}

func (c *cli) json(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table(fn func(w io.Writer)) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fn(w)
	return w.Flush()
}

func nonEmpty(s ...string) []string {
	out := s[:0]
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
