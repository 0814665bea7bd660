package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// ParseOutputFormat validates a user-supplied format name
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatTable, "":
		return OutputFormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// OutputFormatter handles output formatting for CLI commands
type OutputFormatter struct {
	format      OutputFormat
	quiet       bool
	writer      io.Writer
	errorWriter io.Writer
}

// OutputOptions configures the output formatter
type OutputOptions struct {
	Format      OutputFormat
	Quiet       bool
	Writer      io.Writer
	ErrorWriter io.Writer
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(opts OutputOptions) *OutputFormatter {
	f := &OutputFormatter{
		format:      opts.Format,
		quiet:       opts.Quiet,
		writer:      opts.Writer,
		errorWriter: opts.ErrorWriter,
	}
	if f.format == "" {
		f.format = OutputFormatTable
	}
	if f.writer == nil {
		f.writer = os.Stdout
	}
	if f.errorWriter == nil {
		f.errorWriter = os.Stderr
	}
	return f
}

// WriteListing writes a listing page in the configured format
func (f *OutputFormatter) WriteListing(page *types.ListingPage) error {
	switch f.format {
	case OutputFormatJSON:
		return f.writeJSON(page)
	case OutputFormatTable:
		return f.writeListingTable(page)
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// WriteJSON writes any value as indented JSON
func (f *OutputFormatter) WriteJSON(data interface{}) error {
	return f.writeJSON(data)
}

func (f *OutputFormatter) writeJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *OutputFormatter) writeListingTable(page *types.ListingPage) error {
	if err := f.writeFileTable(page.Files); err != nil {
		return err
	}

	if len(page.Skipped) > 0 {
		f.Log("\n%d file(s) over the size limit were skipped.", len(page.Skipped))
	}
	if page.PageToken != "" {
		f.Log("\nMore results available. Use --page-token %s to continue.", page.PageToken)
	}
	return nil
}

// writeFileTable writes file entries as a table
func (f *OutputFormatter) writeFileTable(files []*types.FileEntry) error {
	if len(files) == 0 {
		if !f.quiet {
			if _, err := fmt.Fprintln(f.writer, "No files found."); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(f.writer)
	table.SetHeader([]string{"ID", "Name", "Type", "Size", "Thumbnail"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, file := range files {
		thumb := "-"
		switch {
		case file.Thumbnail != "":
			thumb = "inline"
		case file.HasThumbnail:
			thumb = "yes"
		}

		table.Append([]string{
			truncateString(file.ID, 20),
			truncateString(file.Name, 50),
			file.MimeType,
			formatFileSize(file.Size),
			thumb,
		})
	}

	table.Render()
	return nil
}

// Log writes a message to stderr unless quiet mode is enabled
func (f *OutputFormatter) Log(format string, args ...interface{}) {
	if !f.quiet {
		if _, err := fmt.Fprintf(f.errorWriter, format+"\n", args...); err != nil {
			return
		}
	}
}

// formatFileSize formats file size for display
func formatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// truncateString truncates a string to maxLen, adding "..." if truncated
func truncateString(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
