package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// locateOptions are the raw flag values of the locate command.
type locateOptions struct {
	Text       string
	ListingURL string
	Images     []string
	Mode       string
	HintsFile  string
	City       string
	PostalCode string
	Pool       string
}

var locateOpts locateOptions

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Run one localization and print the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, err := buildInput(locateOpts)
		if err != nil {
			return err
		}

		env, err := initLocator(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Orchestrator.Submit(ctx, in)
		if out != nil {
			if encErr := printJSON(cmd.OutOrStdout(), out); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

// buildInput assembles the request input. Flag hints override those read
// from the hints file.
func buildInput(o locateOptions) (model.Input, error) {
	in := model.Input{
		Text:       o.Text,
		ListingURL: o.ListingURL,
		ImageRefs:  o.Images,
		Mode:       model.Mode(o.Mode),
	}
	if !in.Mode.Valid() {
		return in, eris.Errorf("unknown mode %q (want address or parcel-scan)", o.Mode)
	}

	if o.HintsFile != "" {
		data, err := os.ReadFile(o.HintsFile)
		if err != nil {
			return in, eris.Wrapf(err, "read hints %s", o.HintsFile)
		}
		if err := json.Unmarshal(data, &in.Hints); err != nil {
			return in, eris.Wrapf(err, "parse hints %s", o.HintsFile)
		}
	}
	if o.City != "" {
		in.Hints.City = o.City
	}
	if o.PostalCode != "" {
		in.Hints.PostalCode = o.PostalCode
	}
	if o.Pool != "" {
		in.Hints.Pool = model.PoolState(o.Pool)
	}

	if in.Text == "" && in.ListingURL == "" && len(in.ImageRefs) == 0 &&
		in.Hints.City == "" && in.Hints.PostalCode == "" {
		return in, eris.New("nothing to locate: pass --text, --url, --image, --city or --postal-code")
	}
	return in, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	f := locateCmd.Flags()
	f.StringVar(&locateOpts.Text, "text", "", "listing description text")
	f.StringVar(&locateOpts.ListingURL, "url", "", "listing URL")
	f.StringSliceVar(&locateOpts.Images, "image", nil, "reference photo URL (repeatable)")
	f.StringVar(&locateOpts.Mode, "mode", "", "address or parcel-scan (default: parcel-scan when photos are given)")
	f.StringVar(&locateOpts.HintsFile, "hints", "", "JSON file with user hints")
	f.StringVar(&locateOpts.City, "city", "", "city hint")
	f.StringVar(&locateOpts.PostalCode, "postal-code", "", "postal code hint")
	f.StringVar(&locateOpts.Pool, "pool", "", "pool hint: none, rectangular, round, unknown")
	rootCmd.AddCommand(locateCmd)
}
