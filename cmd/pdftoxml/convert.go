package main

import (
	"context"
	"fmt"
	"time"

	"github.com/you-humble/pdftoxml/internal/converter"
	"github.com/you-humble/pdftoxml/internal/domain"
	"github.com/you-humble/pdftoxml/internal/extractor"

	"github.com/spf13/cobra"
)

var convertTimeout time.Duration

var convertCmd = &cobra.Command{
	Use:   "convert <source.pdf> <destination.xml>",
	Short: "Convert a single PDF file without the server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), convertTimeout)
		defer cancel()

		status := &localStatus{status: domain.StatusPending}
		if err := converter.New(status, extractor.New()).Convert(ctx, args[0], args[1], "cli"); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", args[0], args[1], status.status)
		return nil
	},
}

func init() {
	convertCmd.Flags().DurationVar(&convertTimeout, "timeout", 2*time.Minute, "conversion timeout")
}

// localStatus tracks the single job of a CLI run.
type localStatus struct {
	status domain.ConversionStatus
}

func (s *localStatus) Claim(_ context.Context, _ string) error {
	if s.status != domain.StatusPending {
		return domain.ErrConversionNotPending
	}
	s.status = domain.StatusInProgress
	return nil
}

func (s *localStatus) UpdateStatus(_ context.Context, _ string, status domain.ConversionStatus, _ string) error {
	s.status = status
	return nil
}
