package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tiercache"
)

func (a *App) newSetCmd() *cobra.Command {
	var (
		ttl   time.Duration
		level string
		meta  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "set KEY [VALUE|-]",
		Short: "Store a value; reads stdin when VALUE is - or missing",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := tiercache.ParseLevel(level)
			if err != nil {
				return err
			}
			var value []byte
			if len(args) == 2 && args[1] != "-" {
				value = []byte(args[1])
			} else if value, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return err
			}
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				if !c.Set(cmd.Context(), args[0], value, tiercache.SetOptions{TTL: ttl, Level: lvl, Metadata: meta}) {
					return fmt.Errorf("set %q: no tier accepted the entry", args[0])
				}
				fmt.Fprintln(a.stdout, "OK")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Entry lifetime; 0 uses default_ttl, negative never expires")
	cmd.Flags().StringVar(&level, "level", "local", "Preferred tier: auto, memory, session, local or structured")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata stored with the entry (k=v,...)")
	return cmd
}

func (a *App) newGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get KEY...",
		Short: "Print stored values; exits 2 when any key is missing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				// a promoted entry would leave its durable tier and die with the process
				got := c.GetMultiple(cmd.Context(), args, tiercache.GetOptions{NoPromote: true})
				if asJSON {
					out := make(map[string]string, len(got))
					for k, v := range got {
						out[k] = string(v)
					}
					if err := writeJSON(a.stdout, out); err != nil {
						return err
					}
				} else {
					for _, k := range args {
						if v, ok := got[k]; ok {
							fmt.Fprintf(a.stdout, "%s\n", v)
						}
					}
				}
				if len(got) < len(args) {
					return errNotFound
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON object of key to value")
	return cmd
}

func (a *App) newDelCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "del KEY...",
		Aliases: []string{"delete", "rm"},
		Short:   "Delete keys from every tier",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				n := 0
				for _, r := range c.DeleteMultiple(cmd.Context(), args) {
					if r.OK {
						n++
					}
				}
				fmt.Fprintf(a.stdout, "deleted %d\n", n)
				return nil
			})
		},
	}
}

func (a *App) newTouchCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "touch KEY",
		Short: "Refresh a key's access time, or reset its TTL with --ttl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				if !c.Touch(cmd.Context(), args[0], ttl) {
					return errNotFound
				}
				fmt.Fprintln(a.stdout, "OK")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "New lifetime; 0 keeps the current expiry")
	return cmd
}

func (a *App) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-tier residency as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				return writeJSON(a.stdout, c.Stats())
			})
		},
	}
}

func (a *App) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping every tier; fails when the cache is unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				h := c.HealthCheck(cmd.Context())
				if err := writeJSON(a.stdout, h); err != nil {
					return err
				}
				if h.Status == tiercache.StatusUnhealthy {
					return fmt.Errorf("cache unhealthy")
				}
				return nil
			})
		},
	}
}

func (a *App) newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [LEVEL...]",
		Short: "Wipe the given tiers, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			levels := make([]tiercache.Level, 0, len(args))
			for _, s := range args {
				l, err := tiercache.ParseLevel(s)
				if err != nil {
					return err
				}
				levels = append(levels, l)
			}
			return a.withCache(cmd.Context(), func(c tiercache.Cache[[]byte]) error {
				if !c.Clear(cmd.Context(), levels...) {
					return fmt.Errorf("clear: at least one tier could not be cleared")
				}
				fmt.Fprintln(a.stdout, "OK")
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
