package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sevacare/facility_backend/config"
	"github.com/sevacare/facility_backend/models"
	"github.com/sevacare/facility_backend/models/reports"
	"github.com/sevacare/facility_backend/utils"
	"github.com/sevacare/facility_backend/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operations CLI for the patient billing ledger",
	Long: `ledgerctl runs ledger maintenance against the database configured by
DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME (a .env file is honoured).

When REDIS_ADDRESS is set, month closes also take the Redis period lock
shared with the API servers.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.ConnectDatabaseWithRetry()
		if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
			config.ConnectRedisWithRetry()
		}
	},
}

var closeMonthCmd = &cobra.Command{
	Use:   "close-month",
	Short: "Close one billing period and carry unpaid balances forward",
	Example: `  ledgerctl close-month --month 3 --year 2024`,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")
		return closePeriods(cmd, []models.Period{{Month: month, Year: year}})
	},
}

var closeRangeCmd = &cobra.Command{
	Use:   "close-range",
	Short: "Close every period from --from through --to, oldest first",
	Example: `  ledgerctl close-range --from 2024-01 --to 2024-06`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		from, err := models.ParsePeriod(fromStr)
		if err != nil {
			return err
		}
		to, err := models.ParsePeriod(toStr)
		if err != nil {
			return err
		}
		periods, err := models.PeriodsThrough(from, to)
		if err != nil {
			return err
		}
		return closePeriods(cmd, periods)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the period ledger to an xlsx file",
	Example: `  ledgerctl export --month 3 --year 2024 --out march.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = reports.LedgerExportFilename(month, year)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := reports.WriteLedgerExport(cmd.Context(), f, month, year); err != nil {
			_ = f.Close()
			_ = os.Remove(out)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables",
	Run: func(cmd *cobra.Command, args []string) {
		models.MigrateTable()
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	},
}

var purgePatientCmd = &cobra.Command{
	Use:   "purge-patient",
	Short: "Delete every ledger row of one patient (requires --repair)",
	Long: `purge-patient removes the payment events, carry-forwards and ledger records
of one patient in a single transaction. The ledger tables are append-only, so
the delete is refused unless --repair is given.`,
	Example: `  ledgerctl purge-patient --patient-id 42 --repair`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patientId, _ := cmd.Flags().GetInt("patient-id")
		repair, _ := cmd.Flags().GetBool("repair")
		ctx := utils.SetRequestSourceInContext(cmd.Context(), "ledgerctl")
		if repair {
			ctx = utils.SetAllowLedgerRepairInContext(ctx, true)
		}
		result, err := models.PurgePatientLedger(ctx, patientId)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "patient %d: payment_events=%d carry_forwards=%d ledger_records=%d\n",
			result.PatientId, result.PaymentEvents, result.CarryForwards, result.LedgerRecords)
		return nil
	},
}

// closePeriods stops at the first failure; earlier periods stay closed.
func closePeriods(cmd *cobra.Command, periods []models.Period) error {
	logger := config.GetLogger()
	for _, p := range periods {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.CloseMonthTimeout())
		ctx = utils.SetRequestSourceInContext(ctx, "ledgerctl")
		result, err := workflow.CloseMonth(ctx, p.Month, p.Year)
		cancel()
		if err != nil {
			config.LogError(logger, "cmd/ledgerctl", "closePeriods", "close "+p.String(), nil, err)
			return fmt.Errorf("close %s: %w", p, err)
		}
		logger.WithFields(logrus.Fields{
			"field":  "ledgerctl",
			"period": p.String(),
		}).Info("closed")
		fmt.Fprintf(cmd.OutOrStdout(), "%s: records_processed=%d carry_forward_propagations=%d\n",
			p, result.RecordsProcessed, result.CarryForwardPropagations)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{closeMonthCmd, exportCmd} {
		c.Flags().Int("month", 0, "Period month (1-12)")
		c.Flags().Int("year", 0, "Period year")
		_ = c.MarkFlagRequired("month")
		_ = c.MarkFlagRequired("year")
	}
	exportCmd.Flags().String("out", "", "Output file (default ledger-YYYY-MM.xlsx)")

	closeRangeCmd.Flags().String("from", "", "First period to close (YYYY-MM)")
	closeRangeCmd.Flags().String("to", "", "Last period to close (YYYY-MM)")
	_ = closeRangeCmd.MarkFlagRequired("from")
	_ = closeRangeCmd.MarkFlagRequired("to")

	purgePatientCmd.Flags().Int("patient-id", 0, "Patient whose ledger is purged")
	purgePatientCmd.Flags().Bool("repair", false, "Lift the ledger immutability guard for this run")
	_ = purgePatientCmd.MarkFlagRequired("patient-id")

	rootCmd.AddCommand(closeMonthCmd, closeRangeCmd, exportCmd, migrateCmd, purgePatientCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
