package reports

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// writeReportCSV streams one report snapshot as CSV. Comment lines carry
// the report metadata; section rows follow with a blank row between
// sections.
func writeReportCSV(w io.Writer, report Report) error {
	streamer := newCSVStreamer(w)
	printer := message.NewPrinter(language.English)

	if err := streamer.writeComment(fmt.Sprintf("# Report: %s #%d", report.Type, report.ID)); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339))); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Window: %s to %s", formatBound(report.Payload.Window.From), formatBound(report.Payload.Window.To))); err != nil {
		return err
	}
	totals := printer.Sprintf("# Totals: debits %v, credits %v",
		report.Payload.TotalDebits.StringFixed(2), report.Payload.TotalCredits.StringFixed(2))
	if err := streamer.writeComment(totals); err != nil {
		return err
	}

	if err := streamer.writeRow([]string{"Section", "Code", "Name", "Type", "Balance"}); err != nil {
		return err
	}
	for _, b := range report.Payload.AccountBalances {
		if err := streamer.writeRow([]string{"ACCOUNT", b.Code, b.Name, b.Type, b.Balance.StringFixed(2)}); err != nil {
			return err
		}
	}

	if len(report.Payload.OpenInvoices) > 0 {
		if err := streamer.writeRow([]string{"", "", "", "", ""}); err != nil {
			return err
		}
		if err := streamer.writeRow([]string{"Section", "Number", "Status", "Due", "Amount"}); err != nil {
			return err
		}
		for _, inv := range report.Payload.OpenInvoices {
			if err := streamer.writeRow([]string{
				"INVOICE",
				inv.Number,
				inv.Status,
				inv.DueAt.UTC().Format("2006-01-02"),
				inv.Amount.StringFixed(2) + " " + inv.Currency,
			}); err != nil {
				return err
			}
		}
	}

	if len(report.Payload.RecentTransactions) > 0 {
		if err := streamer.writeRow([]string{"", "", "", "", ""}); err != nil {
			return err
		}
		if err := streamer.writeRow([]string{"Section", "Number", "Type", "Date", "Total"}); err != nil {
			return err
		}
		for _, t := range report.Payload.RecentTransactions {
			if err := streamer.writeRow([]string{
				"POSTING",
				t.Number,
				t.Type,
				t.Date.UTC().Format("2006-01-02"),
				t.Total.StringFixed(2),
			}); err != nil {
				return err
			}
		}
	}

	if snap := report.Payload.Billing; snap != nil {
		if err := streamer.writeRow([]string{"", "", "", "", ""}); err != nil {
			return err
		}
		rows := [][]string{
			{"BILLING", "State", snap.State, "", ""},
			{"BILLING", "Payment Status", snap.PaymentStatus, "", ""},
			{"BILLING", "Failed Payments", strconv.Itoa(snap.FailedPayments), "", ""},
			{"BILLING", "Outstanding", snap.OutstandingBalance.StringFixed(2), "", ""},
		}
		for _, row := range rows {
			if err := streamer.writeRow(row); err != nil {
				return err
			}
		}
	}

	return streamer.Close()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format("2006-01-02")
}
