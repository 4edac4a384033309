package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/panelwatch/internal/dispatch"
	"github.com/lalith-99/panelwatch/internal/models"
	"github.com/spf13/cobra"
)

func parseChangeID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid change id %q", arg)
	}
	return id, nil
}

func (c *cli) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <change-id>",
		Short: "Classify a recorded change and notify its dependent views again",
		Long: `Replay runs classification and notification for a change that is
already in the ledger. Views that were already notified about the change
are not notified twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changeID, err := parseChangeID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			notes, err := a.Processor.Process(cmd.Context(), changeID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, struct {
				ChangeID      int64                     `json:"change_id"`
				Notifications []models.ViewNotification `json:"notifications"`
			}{changeID, notes})
		},
	}
}

type classifiedView struct {
	ViewID   uuid.UUID          `json:"view_id"`
	ViewName string             `json:"view_name"`
	Owner    uuid.UUID          `json:"owner_user_id"`
	Impact   models.ImpactLevel `json:"impact"`
}

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <change-id>",
		Short: "Print how a recorded change affects published views, without notifying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changeID, err := parseChangeID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			change, classified, err := a.Processor.Classify(cmd.Context(), changeID)
			if err != nil {
				return err
			}
			views := make([]classifiedView, 0, len(classified))
			for _, cv := range classified {
				views = append(views, classifiedView{
					ViewID:   cv.View.ID,
					ViewName: cv.View.Name,
					Owner:    cv.View.OwnerUserID,
					Impact:   cv.Impact,
				})
			}
			return writeJSON(cmd, struct {
				Change *models.PanelChange `json:"change"`
				Views  []classifiedView     `json:"views"`
			}{change, views})
		},
	}
}

func (c *cli) sweepCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Process every recorded change that has not completed a notification pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper := dispatch.NewSweeper(a.Stores.Changes, a.Processor, dispatch.SweepConfig{
				Grace:     grace,
				BatchSize: c.cfg.Dispatch.SweepBatch,
			}, c.logger)
			res, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d changes failed, see the log", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "skip changes recorded less than this long ago")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
