package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/history"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format      ExportFormat
	StartTime   time.Time
	EndTime     time.Time
	Account     types.Address // only transfers sent or received by this account
	OnlySuccess bool
	OutputDir   string
}

// TransferExporter writes transfer records to files.
type TransferExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewTransferExporter creates a new exporter.
func NewTransferExporter(logger *zap.Logger) *TransferExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportTransfers writes the records matching options and returns the file path.
func (te *TransferExporter) ExportTransfers(records []history.Record, options ExportOptions) (string, error) {
	filtered := te.filterRecords(records, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no transfers match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = te.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	te.logger.Info("Transfers exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func (te *TransferExporter) filterRecords(records []history.Record, options ExportOptions) []history.Record {
	var filtered []history.Record
	for _, r := range records {
		if !options.StartTime.IsZero() && r.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !r.Timestamp.Before(options.EndTime) {
			continue
		}
		if !options.Account.IsZero() && !r.Involves(options.Account) {
			continue
		}
		if options.OnlySuccess && !r.Success {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func (te *TransferExporter) generateFilename(options ExportOptions) string {
	prefix := "transfers_all"
	if options.OnlySuccess {
		prefix = "transfers_committed"
	}
	if !options.Account.IsZero() {
		prefix += "_" + options.Account.String()[:8]
	}
	return fmt.Sprintf("%s_%s.%s", prefix, te.now().Format("20060102_150405"), options.Format)
}

func (te *TransferExporter) exportToCSV(records []history.Record, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(history.CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range records {
		if err := writer.Write(r.ToCSV()); err != nil {
			return fmt.Errorf("failed to write transfer: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// TransferView is the JSON shape of a record. Amounts are decimal token strings.
type TransferView struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     string    `json:"amount"`
	Net        string    `json:"net,omitempty"`
	TaxPercent uint64    `json:"tax_percent"`
	Tax        string    `json:"tax,omitempty"`
	Burned     string    `json:"burned,omitempty"`
	Treasury   string    `json:"treasury,omitempty"`
	Reflection string    `json:"reflection,omitempty"`
	Success    bool      `json:"success"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func viewOf(r history.Record) TransferView {
	return TransferView{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		From:       r.From.String(),
		To:         r.To.String(),
		Amount:     types.FormatUnits(r.Amount),
		Net:        optional(r.Net),
		TaxPercent: r.TaxPercent,
		Tax:        optional(r.Tax),
		Burned:     optional(r.Burned),
		Treasury:   optional(r.Treasury),
		Reflection: optional(r.Reflection),
		Success:    r.Success,
		Stage:      r.Stage,
		Error:      r.Error,
	}
}

func optional(x *uint256.Int) string {
	if x == nil || x.IsZero() {
		return ""
	}
	return types.FormatUnits(x)
}

func views(records []history.Record) []TransferView {
	out := make([]TransferView, len(records))
	for i, r := range records {
		out[i] = viewOf(r)
	}
	return out
}

func (te *TransferExporter) exportToJSON(records []history.Record, outputPath string) error {
	exportData := struct {
		ExportTime    time.Time      `json:"export_time"`
		TransferCount int            `json:"transfer_count"`
		Transfers     []TransferView `json:"transfers"`
		Summary       ExportSummary  `json:"summary"`
	}{
		ExportTime:    te.now(),
		TransferCount: len(records),
		Transfers:     views(records),
		Summary:       calculateSummary(records),
	}
	return writeJSON(outputPath, exportData)
}

func writeJSON(outputPath string, v any) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported transfers.
type ExportSummary struct {
	TotalTransfers int       `json:"total_transfers"`
	Successful     int       `json:"successful"`
	Rejected       int       `json:"rejected"`
	UniqueAccounts int       `json:"unique_accounts"`
	Volume         string    `json:"volume"`
	Tax            string    `json:"tax"`
	Burned         string    `json:"burned"`
	Treasury       string    `json:"treasury"`
	Reflected      string    `json:"reflected"`
	AvgTaxPercent  float64   `json:"avg_tax_percent"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// calculateSummary expects records sorted by time.
func calculateSummary(records []history.Record) ExportSummary {
	summary := ExportSummary{TotalTransfers: len(records)}
	if len(records) == 0 {
		return summary
	}
	summary.StartDate = records[0].Timestamp
	summary.EndDate = records[len(records)-1].Timestamp

	volume, tax, burned, treasury, reflected := types.Zero(), types.Zero(), types.Zero(), types.Zero(), types.Zero()
	accounts := make(map[types.Address]struct{})
	var percentSum uint64

	for _, r := range records {
		accounts[r.From] = struct{}{}
		accounts[r.To] = struct{}{}
		if !r.Success {
			summary.Rejected++
			continue
		}
		summary.Successful++
		percentSum += r.TaxPercent
		for _, pair := range [][2]*uint256.Int{
			{volume, r.Amount}, {tax, r.Tax}, {burned, r.Burned},
			{treasury, r.Treasury}, {reflected, r.Reflection},
		} {
			if pair[1] != nil {
				pair[0].Add(pair[0], pair[1])
			}
		}
	}

	summary.UniqueAccounts = len(accounts)
	summary.Volume = types.FormatUnits(volume)
	summary.Tax = types.FormatUnits(tax)
	summary.Burned = types.FormatUnits(burned)
	summary.Treasury = types.FormatUnits(treasury)
	summary.Reflected = types.FormatUnits(reflected)
	if summary.Successful > 0 {
		summary.AvgTaxPercent = float64(percentSum) / float64(summary.Successful)
	}
	return summary
}

// DailyReport summarizes one day of transfers.
type DailyReport struct {
	Date            time.Time      `json:"date"`
	TransferCount   int            `json:"transfer_count"`
	Summary         ExportSummary  `json:"summary"`
	HourlyBreakdown []HourlyStats  `json:"hourly_breakdown"`
	Transfers       []TransferView `json:"transfers"`
}

// HourlyStats represents transfer statistics for an hour.
type HourlyStats struct {
	Hour          int    `json:"hour"`
	TransferCount int    `json:"transfer_count"`
	Rejected      int    `json:"rejected"`
	Volume        string `json:"volume"`
}

// ExportDailyReport writes the report for the UTC day containing date. It
// returns an empty path when the day had no transfers.
func (te *TransferExporter) ExportDailyReport(records []history.Record, date time.Time, outputDir string) (string, error) {
	date = date.UTC()
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	filtered := te.filterRecords(records, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24 * time.Hour),
	})
	if len(filtered) == 0 {
		te.logger.Info("No transfers for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))

	report := DailyReport{
		Date:            startOfDay,
		TransferCount:   len(filtered),
		Summary:         calculateSummary(filtered),
		HourlyBreakdown: calculateHourlyBreakdown(filtered),
		Transfers:       views(filtered),
	}
	if err := writeJSON(outputPath, report); err != nil {
		return "", err
	}

	te.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("transfers", len(filtered)))

	return outputPath, nil
}

func calculateHourlyBreakdown(records []history.Record) []HourlyStats {
	var counts, rejected [24]int
	var volumes [24]*uint256.Int
	for _, r := range records {
		hour := r.Timestamp.UTC().Hour()
		counts[hour]++
		if !r.Success {
			rejected[hour]++
			continue
		}
		if volumes[hour] == nil {
			volumes[hour] = types.Zero()
		}
		volumes[hour].Add(volumes[hour], r.Amount)
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if counts[hour] == 0 {
			continue
		}
		breakdown = append(breakdown, HourlyStats{
			Hour:          hour,
			TransferCount: counts[hour],
			Rejected:      rejected[hour],
			Volume:        types.FormatUnits(volumes[hour]),
		})
	}
	return breakdown
}
