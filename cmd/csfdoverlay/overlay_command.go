package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"csfdoverlay/internal/config"
	"csfdoverlay/internal/overlay"
)

func newOverlayCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlay",
		Short: "Web client overlay utilities",
	}
	cmd.AddCommand(newOverlayInjectCommand(ctx))
	cmd.AddCommand(newOverlayScriptCommand())
	return cmd
}

func newOverlayInjectCommand(ctx *commandContext) *cobra.Command {
	var webRoot string
	var src string
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Add the overlay script tag to the web client index.html",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := strings.TrimSpace(webRoot)
			if root == "" {
				root = cfg.Overlay.WebRoot
			} else if root, err = config.ExpandPath(root); err != nil {
				return fmt.Errorf("resolve web root: %w", err)
			}
			if root == "" {
				return errors.New("no web root: set overlay.web_root or pass --web-root")
			}
			if strings.TrimSpace(src) == "" {
				src = cfg.OverlayScriptURL()
			}

			index := filepath.Join(root, "index.html")
			changed, err := overlay.PatchFile(index, overlay.WithScriptSrc(src))
			if err != nil {
				return fmt.Errorf("patch %s: %w", index, err)
			}
			out := cmd.OutOrStdout()
			if !changed {
				fmt.Fprintf(out, "%s already loads the overlay\n", index)
				return nil
			}
			fmt.Fprintf(out, "Injected %s into %s (backup at %s)\n", src, index, index+overlay.BackupSuffix)
			return nil
		},
	}
	cmd.Flags().StringVar(&webRoot, "web-root", "", "Web client directory (defaults to overlay.web_root)")
	cmd.Flags().StringVar(&src, "src", "", "Script URL to inject (defaults to the daemon address)")
	return cmd
}

func newOverlayScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "script",
		Short:       "Print the overlay script",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(overlay.Script())
			return err
		},
	}
}
