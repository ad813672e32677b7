package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"voiceline/internal/identity"
)

func newSpeakersCommand(ctx *commandContext) *cobra.Command {
	speakersCmd := &cobra.Command{
		Use:   "speakers",
		Short: "Inspect the global speaker registry",
	}

	speakersCmd.AddCommand(newSpeakersListCommand(ctx))
	speakersCmd.AddCommand(newSpeakersShowCommand(ctx))

	return speakersCmd
}

func newSpeakersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered speaker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *identity.Store) error {
				speakers, err := store.ListSpeakers(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(speakers) == 0 {
					fmt.Fprintln(out, "No speakers registered")
					return nil
				}

				rows := make([][]string, 0, len(speakers))
				for _, speaker := range speakers {
					rows = append(rows, []string{
						strconv.FormatInt(speaker.ID, 10),
						strconv.Itoa(speaker.EpisodeCount),
						strconv.Itoa(speaker.SegmentCount),
						speaker.UpdatedAt.Format("2006-01-02 15:04"),
						speaker.Notes,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Episodes", "Segments", "Updated", "Notes"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newSpeakersShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one speaker's episode history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("speaker id must be an integer, got %q", args[0])
			}

			return ctx.withStore(func(store *identity.Store) error {
				speaker, err := store.SpeakerByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if speaker == nil {
					return fmt.Errorf("speaker %d not found", id)
				}
				appearances, err := store.Appearances(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Speaker %d\n", speaker.ID)
				fmt.Fprintf(out, "  Signature dimension: %d\n", speaker.Dim)
				fmt.Fprintf(out, "  Episodes:            %d\n", speaker.EpisodeCount)
				fmt.Fprintf(out, "  Segments:            %d\n", speaker.SegmentCount)
				fmt.Fprintf(out, "  First registered:    %s\n", speaker.CreatedAt.Format("2006-01-02 15:04"))
				if speaker.Notes != "" {
					fmt.Fprintf(out, "  Notes:               %s\n", speaker.Notes)
				}

				if len(appearances) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(appearances))
				for _, app := range appearances {
					rows = append(rows, []string{
						strconv.Itoa(app.EpisodeNum),
						app.LocalLabel,
						strconv.Itoa(app.SegmentCount),
						app.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Episode", "Local Label", "Segments", "Recorded"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
