package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"voiceline/internal/identity"
	"voiceline/internal/pipeline"
	"voiceline/internal/services/sherpa"
	"voiceline/internal/subtitles"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		force      bool
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "process <episode> <audio.wav> <subtitles.srt>",
		Short: "Diarize one episode and resolve its speakers against the store",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeNum, err := strconv.Atoi(args[0])
			if err != nil || episodeNum <= 0 {
				return fmt.Errorf("episode must be a positive integer, got %q", args[0])
			}
			audioPath := args[1]
			subtitlePath := args[2]

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			lines, err := subtitles.ParseFile(subtitlePath)
			if err != nil {
				return err
			}

			detector, err := sherpa.NewDetector(cfg.Diarizer)
			if err != nil {
				return err
			}
			defer detector.Close()

			extractor, err := sherpa.NewExtractor(cfg.Diarizer)
			if err != nil {
				return err
			}
			defer extractor.Close()

			turns, err := detector.Detect(cmd.Context(), audioPath)
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *identity.Store) error {
				proc := pipeline.New(store, extractor, logger)
				result, err := proc.ProcessEpisode(cmd.Context(), episodeNum, audioPath, turns, lines, pipeline.Options{
					MinDuration:         cfg.Segments.MinDuration,
					MaxDuration:         cfg.Segments.MaxDuration,
					MinSpeakerDuration:  cfg.Identity.MinSpeakerDuration,
					SimilarityThreshold: cfg.Identity.SimilarityThreshold,
					UpdateOnMatch:       cfg.Identity.UpdateOnMatch,
					UpdateWeight:        cfg.Identity.UpdateWeight,
					Force:               force,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result.Skipped {
					fmt.Fprintf(out, "Episode %d already processed; use --force to reprocess\n", episodeNum)
					return nil
				}

				if outputPath != "" {
					if err := writeSegments(outputPath, result); err != nil {
						return err
					}
					fmt.Fprintf(out, "Wrote %d segments to %s\n", len(result.Segments), outputPath)
				}

				rows := [][]string{
					{"Segments", strconv.Itoa(len(result.Segments))},
					{"Speakers resolved", strconv.Itoa(len(result.Mapping))},
					{"Short speakers dropped", strconv.Itoa(result.DroppedShortSpeakers)},
					{"Failed extractions", strconv.Itoa(result.FailedExtractions)},
					{"Lines dropped (duration)", strconv.Itoa(result.DroppedDuration)},
					{"Lines dropped (no speaker)", strconv.Itoa(result.DroppedNoSpeaker)},
				}
				fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess the episode even if already recorded")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write resolved segments to a TSV file")
	return cmd
}

// writeSegments emits one "start end speaker_id" row per segment,
// tab-separated, in segment order.
func writeSegments(path string, result *pipeline.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment file: %w", err)
	}
	defer file.Close()

	for _, seg := range result.Segments {
		if _, err := fmt.Fprintf(file, "%.3f\t%.3f\t%d\n", seg.Start, seg.End, seg.SpeakerID); err != nil {
			return fmt.Errorf("write segment file: %w", err)
		}
	}
	return nil
}
