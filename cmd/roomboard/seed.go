package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/MarcoPoloResearchLab/roomboard/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSeedCommand() *cobra.Command {
	var (
		file            string
		clearFirst      bool
		orderByPosition bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load hotels from a JSON file into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			return loadHotels(cmd, list, seed.Options{Clear: clearFirst, OrderByPosition: orderByPosition})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding an array of hotels")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Delete every hotel before loading")
	cmd.Flags().BoolVar(&orderByPosition, "order-by-position", false, "Set each hotel's display order to its position in the file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newImportExcelCommand() *cobra.Command {
	var (
		file       string
		clearFirst bool
	)
	cmd := &cobra.Command{
		Use:   "import-excel",
		Short: "Load hotels from a workbook, one sheet per hotel",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := seed.LoadWorkbook(file)
			if err != nil {
				return err
			}
			return loadHotels(cmd, list, seed.Options{Clear: clearFirst})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Workbook (.xlsx) to import")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Delete every hotel before importing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadHotels(cmd *cobra.Command, list []hotels.Hotel, options seed.Options) error {
	app, err := openApplication(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := seed.Apply(cmd.Context(), app.collection, list, options)
	if err != nil {
		app.logger.Error("seed failed", zap.Error(err))
		return err
	}
	app.logger.Info("hotels loaded",
		zap.String("collection", app.config.Collection),
		zap.Int("cleared", result.Cleared),
		zap.Int("written", result.Written))
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %d, wrote %d hotels into %q\n", result.Cleared, result.Written, app.config.Collection)
	return nil
}
