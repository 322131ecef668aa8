package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/integrail/gamma-client/pkg/client"
	"github.com/integrail/gamma-client/pkg/client/dto"
	"github.com/integrail/gamma-client/pkg/util"
)

func newCreateCmd(root *rootOpts) *cobra.Command {
	var (
		text, file, title, theme, audience, textMode string
		slides                                       int
		extra                                        []string
		plain                                        bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a presentation and download it",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			e.serveMetrics(cmd.Context())

			if file != "" {
				if text, err = readInput(cmd, file); err != nil {
					return err
				}
			}
			extraParams, err := util.SliceToMap(extra)
			if err != nil {
				return err
			}
			in := client.Input{
				InputText:      text,
				NumberOfSlides: slides,
				Title:          title,
				Overrides: client.Overrides{
					ThemeName:    lo.EmptyableToPtr(theme),
					TextAudience: lo.EmptyableToPtr(audience),
					TextMode:     lo.EmptyableToPtr(textMode),
					Extra:        extraParams,
				},
			}

			var res *client.ArtifactResult
			if plain {
				res, err = e.client.CreatePresentation(cmd.Context(), in, client.WithReporter(client.ReporterFunc(func(evt client.Event) {
					e.log.Info().Str("generation_id", evt.GenerationID).Str("status", string(evt.Status)).Dur("elapsed", evt.Elapsed).Msg("progress")
				})))
			} else {
				progress := client.NewProgress(cmd.Context(), e.client, in)
				if _, runErr := tea.NewProgram(progress, tea.WithContext(cmd.Context())).Run(); runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
					return errors.Wrapf(runErr, "failed to run progress view")
				}
				if res, err = progress.Result(); res == nil && err == nil {
					return errors.New("generation interrupted")
				}
			}
			if err != nil {
				return err
			}
			e.mirrorArtifact(cmd.Context(), res)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&text, "text", "T", "", "Content to generate the presentation from")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read content from file ('-' for stdin)")
	cmd.Flags().IntVarP(&slides, "slides", "n", 0, "Number of content slides (a title card is added)")
	cmd.Flags().StringVar(&title, "title", "", "Label shown in logs and progress output")
	cmd.Flags().StringVar(&theme, "theme", "", "Theme name override")
	cmd.Flags().StringVar(&audience, "audience", "", "Target audience override")
	cmd.Flags().StringVar(&textMode, "text-mode", "", "Text mode override: generate, condense or preserve")
	cmd.Flags().StringSliceVarP(&extra, "extra", "X", []string{}, "Additional top-level request fields (key=value)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Log progress instead of showing the interactive view")
	return cmd
}

func newStatusCmd(root *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status <generation-id>",
		Short: "Show the current status of a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			generation, err := e.client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(generation.Raw, '\n'))
			return err
		},
	}
}

func newFetchCmd(root *rootOpts) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "fetch <generation-id>",
		Short: "Download the artifact of a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			e.serveMetrics(cmd.Context())

			var completed *dto.Generation
			if wait {
				job := client.NewJob(args[0], time.Now())
				completed, err = e.client.Poll(cmd.Context(), job)
			} else {
				completed, err = e.client.Status(cmd.Context(), args[0])
				if err == nil {
					if status, _ := client.ParseStatus(completed.Status); status != client.StatusCompleted {
						return errors.Errorf("generation %q is %s, use --wait to wait for it", args[0], completed.Status)
					}
				}
			}
			if err != nil {
				return err
			}
			res, err := e.client.Fetch(cmd.Context(), completed)
			if err != nil {
				return err
			}
			e.mirrorArtifact(cmd.Context(), res)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the generation completes before downloading")
	return cmd
}

func readInput(cmd *cobra.Command, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read input %s", file)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "failed to print result")
	}
	return nil
}
