package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/analysis"
	"github.com/dharsanguruparan/lunashield/internal/dashboard"
	"github.com/dharsanguruparan/lunashield/internal/model"
	"github.com/dharsanguruparan/lunashield/internal/view"
	"github.com/dharsanguruparan/lunashield/internal/workflow"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Run the admission checks on local files without uploading",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rejected := 0
			for _, path := range args {
				file, err := openLocal(path)
				if err != nil {
					return err
				}
				res := a.policy.Check(file)
				if res.Accepted {
					fmt.Fprintf(out, "ok       %s\n", view.FileLabel(file))
					continue
				}
				rejected++
				fmt.Fprintf(out, "rejected %s: %s\n", file.Name, res.Message)
			}
			if rejected > 0 {
				return fmt.Errorf("%d of %d files rejected", rejected, len(args))
			}
			return nil
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var endpoint string
	var field string
	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Upload videos one at a time and print each verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				endpoint = a.cfg.Endpoint
			}
			if field == "" {
				field = a.cfg.FieldName
			}
			client := analysis.NewClient(endpoint, analysis.WithFieldName(field), analysis.WithLogger(a.log))
			term := view.NewTerminal(cmd.OutOrStdout())
			wf := workflow.New(a.policy, client, term, a.log)

			failed := 0
			for _, path := range args {
				file, err := openLocal(path)
				if err != nil {
					return err
				}
				if res := wf.SelectFile(file); !res.Accepted {
					failed++
					continue
				}
				resp, err := wf.SubmitSelected(cmd.Context())
				if err != nil {
					var rejected *workflow.RejectedError
					if errors.As(err, &rejected) {
						failed++
						continue
					}
					return err
				}
				if resp.Kind == model.KindFailure {
					failed++
				}
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d analyses failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Analysis endpoint (default LUNASHIELD_ENDPOINT)")
	cmd.Flags().StringVar(&field, "field", "", "Multipart field name (default LUNASHIELD_FIELD_NAME)")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "dashboard [chart...]",
		Short: "Render dashboard charts to PNG files",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = dashboard.Names()
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", outDir, err)
			}
			for _, name := range names {
				path := filepath.Join(outDir, name+".png")
				if err := writeChart(name, path); err != nil {
					return err
				}
				a.log.WithField("path", path).Info("chart written")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write PNG files into")
	return cmd
}

func writeChart(name, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dashboard.Render(name, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// openLocal describes a file on disk the way a browser file picker would:
// base name, size and a declared media type.
func openLocal(path string) (model.SelectedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.SelectedFile{}, err
	}
	if info.IsDir() {
		return model.SelectedFile{}, fmt.Errorf("%s is a directory", path)
	}
	head, err := readHead(path)
	if err != nil {
		return model.SelectedFile{}, err
	}
	name := filepath.Base(path)
	return model.NewSelectedFile(name, info.Size(), admission.DetectMediaType(name, head), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
