package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/avatarcore/internal/cache"
	"github.com/normanking/avatarcore/internal/config"
	"github.com/normanking/avatarcore/internal/speech"
)

// openCache opens the configured response cache. A disabled or path-less
// cache lives in memory.
func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*cache.Cache, error) {
	var store cache.Store
	if cfg.Cache.Enabled && cfg.Cache.Path != "" {
		s, err := cache.OpenSQLite(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		store = s
	}
	return cache.New(ctx, store, logger)
}

func newCacheCmd(load loadFunc) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the speech response cache",
	}

	withCache := func(cmd *cobra.Command, fn func(*cache.Cache, *config.Config) error) error {
		_, cfg, err := load()
		if err != nil {
			return err
		}
		c, err := openCache(cmd.Context(), cfg, zerolog.Nop())
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(c, cfg)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *cache.Cache, _ *config.Config) error {
				for _, k := range c.Keys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get [text]",
		Short: "Show the cached audio for text in the configured voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *cache.Cache, cfg *config.Config) error {
				key := speech.CacheKey(cfg.Speech.Voice, args[0])
				audio, ok, err := c.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no cached audio for %q", key)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", key, len(audio))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [key]",
		Short: "Remove one cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *cache.Cache, _ *config.Config) error {
				return c.Clear(cmd.Context(), args[0])
			})
		},
	}

	clearAllCmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Remove every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(c *cache.Cache, _ *config.Config) error {
				n := c.Len()
				if err := c.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
				return nil
			})
		},
	}

	cacheCmd.AddCommand(listCmd, getCmd, clearCmd, clearAllCmd)
	return cacheCmd
}
