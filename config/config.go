package config

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/darianmavgo/geoio/converters/common"
)

// Config represents the application configuration.
type Config struct {
	BatchSize    int    `hcl:"batch_size,optional"`
	Encoding     string `hcl:"encoding,optional"`
	CSVSeparator string `hcl:"csv_separator,optional"` // "", "auto", "tab" or a single character
	ScanTimeout  string `hcl:"scan_timeout,optional"`  // Go duration, "" or "0" disables
	CancelPerRow bool   `hcl:"cancel_per_row,optional"`
	Verbose      bool   `hcl:"verbose,optional"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: common.DefaultBatchSize,
	}
}

// Load reads the configuration from the given HCL file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values that need parsing.
func (c *Config) Validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative, got %d", c.BatchSize)
	}
	if _, err := c.Delimiter(); err != nil {
		return err
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Encoding != "" {
		if _, err := common.LookupEncoding(c.Encoding); err != nil {
			return err
		}
	}
	return nil
}

// Delimiter maps csv_separator to the rune the csv reader expects.
func (c *Config) Delimiter() (rune, error) {
	switch c.CSVSeparator {
	case "":
		return 0, nil
	case "auto":
		return common.AutoDelimiter, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(c.CSVSeparator)
	if size != len(c.CSVSeparator) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid csv_separator %q", c.CSVSeparator)
	}
	return r, nil
}

// Timeout parses scan_timeout. Zero disables the watchdog.
func (c *Config) Timeout() (time.Duration, error) {
	if c.ScanTimeout == "" || c.ScanTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ScanTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid scan_timeout %q: %w", c.ScanTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("scan_timeout must not be negative, got %s", d)
	}
	return d, nil
}

// ImportOptions returns the pipeline options the configuration describes.
func (c *Config) ImportOptions() (common.ImportOptions, error) {
	delim, err := c.Delimiter()
	if err != nil {
		return common.ImportOptions{}, err
	}
	return common.ImportOptions{
		Encoding:     c.Encoding,
		Delimiter:    delim,
		BatchSize:    c.BatchSize,
		CancelPerRow: c.CancelPerRow,
	}, nil
}

// ExportOptions returns the export side of the configuration. An
// automatic separator exports with the format default.
func (c *Config) ExportOptions() (common.ExportOptions, error) {
	delim, err := c.Delimiter()
	if err != nil {
		return common.ExportOptions{}, err
	}
	if delim == common.AutoDelimiter {
		delim = 0
	}
	return common.ExportOptions{
		Encoding:  c.Encoding,
		Delimiter: delim,
		BatchSize: c.BatchSize,
	}, nil
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(cfg.BatchSize)))
	root.SetAttributeValue("encoding", cty.StringVal(cfg.Encoding))
	root.SetAttributeValue("csv_separator", cty.StringVal(cfg.CSVSeparator))
	root.SetAttributeValue("scan_timeout", cty.StringVal(cfg.ScanTimeout))
	root.SetAttributeValue("cancel_per_row", cty.BoolVal(cfg.CancelPerRow))
	root.SetAttributeValue("verbose", cty.BoolVal(cfg.Verbose))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}
