// Package report writes candidate items, tracked listings and job history
// as CSV. Marketplace titles are user supplied, so every cell is escaped
// against spreadsheet formula injection.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
)

// formulaPrefixes start cells a spreadsheet may evaluate
const formulaPrefixes = "=+-@|%\t\r\n"

// EscapeCell prefixes a quote to values a spreadsheet would treat as a formula
func EscapeCell(value string) string {
	if value != "" && strings.IndexByte(formulaPrefixes, value[0]) >= 0 {
		return "'" + value
	}
	return value
}

// EscapeRow escapes all cells in a row
func EscapeRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCell(cell)
	}
	return escaped
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EscapeRow(header)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(EscapeRow(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteCandidates writes similar items ranked as given
func WriteCandidates(w io.Writer, items []model.CandidateItem) error {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			string(it.Source),
			it.Title,
			money(it.Price),
			strconv.FormatFloat(it.SimilarityScore, 'f', 2, 64),
			it.URL,
		})
	}
	return writeAll(w, []string{"platform", "title", "price", "similarity", "url"}, rows)
}

// WriteListings writes tracked listings; missing prices are empty cells
func WriteListings(w io.Writer, listings []*model.Listing) error {
	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		price := ""
		if l.Price != nil {
			price = money(*l.Price)
		}
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			string(l.Platform),
			l.ExternalID,
			l.Title,
			price,
			l.Currency,
			string(l.Condition),
			string(l.Status),
			l.URL,
		})
	}
	return writeAll(w, []string{"id", "platform", "external_id", "title", "price", "currency", "condition", "status", "url"}, rows)
}

// WriteJobExecutions writes job history newest first, as stored
func WriteJobExecutions(w io.Writer, execs []*model.JobExecution) error {
	rows := make([][]string, 0, len(execs))
	for _, e := range execs {
		completed, duration := "", ""
		if e.CompletedAt != nil {
			completed = e.CompletedAt.UTC().Format(time.RFC3339)
			duration = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.JobID,
			string(e.Status),
			e.StartedAt.UTC().Format(time.RFC3339),
			completed,
			duration,
			e.ErrorMessage,
		})
	}
	return writeAll(w, []string{"id", "job_id", "status", "started_at", "completed_at", "duration", "error"}, rows)
}
