package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"go-canvas-download/internal/resolver"
	"go-canvas-download/internal/verifier"
)

var (
	resolveNameFlag  string
	resolveCheckFlag bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show where a module item or file link actually downloads from",
	Long: `Resolves a Canvas module item or file link the same way the download
command does and prints the result as JSON. Nothing is downloaded.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveNameFlag, "name", "", "Fallback filename used when the server does not supply one")
	resolveCmd.Flags().BoolVar(&resolveCheckFlag, "check", false, "Also report whether the target looks like a presentation")
}

type resolveOutput struct {
	DownloadURL    string `json:"downloadUrl"`
	Filename       string `json:"filename,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	FinalFilename  string `json:"finalFilename,omitempty"`
	IsPresentation *bool  `json:"isPresentation,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newAPIClient()
	r := resolver.New(client)

	target, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	out := resolveOutput{
		DownloadURL: target.DownloadURL,
		Filename:    target.Filename,
		ContentType: target.ContentType,
	}
	fallback := target.Filename
	if fallback == "" {
		fallback = resolveNameFlag
	}
	if name, ok := r.ResolveFilename(ctx, target.DownloadURL, fallback); ok {
		out.FinalFilename = name
	}
	if resolveCheckFlag {
		ok := verifier.New(client).IsPresentation(ctx, target.DownloadURL)
		out.IsPresentation = &ok
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
