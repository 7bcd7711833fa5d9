package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeSlicer()
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeSheet()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.specimen_dir", &c.Paths.SpecimenDir, defaultSpecimenDir},
		{"paths.template", &c.Paths.Template, defaultTemplate},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeBatch() {
	c.Batch.BaseName = strings.TrimSpace(c.Batch.BaseName)
	if c.Batch.BaseName == "" {
		c.Batch.BaseName = defaultBaseName
	}
	c.Batch.Naming = strings.ToLower(strings.TrimSpace(c.Batch.Naming))
	if c.Batch.Naming == "" {
		c.Batch.Naming = defaultNaming
	}
}

func (c *Config) normalizeSlicer() {
	c.Slicer.Binary = strings.TrimSpace(c.Slicer.Binary)
	if c.Slicer.Binary == "" {
		c.Slicer.Binary = defaultSlicerBinary
	}
	c.Slicer.PrinterTechnology = strings.ToUpper(strings.TrimSpace(c.Slicer.PrinterTechnology))
	if c.Slicer.PrinterTechnology == "" {
		c.Slicer.PrinterTechnology = defaultPrinterTechnology
	}
}

func (c *Config) normalizeUpload() error {
	c.Upload.Driver = strings.ToLower(strings.TrimSpace(c.Upload.Driver))
	if c.Upload.Driver == "" {
		c.Upload.Driver = defaultUploadDriver
	}
	c.Upload.Destination = strings.Trim(strings.TrimSpace(c.Upload.Destination), "/")
	if root := strings.TrimSpace(c.Upload.FSRoot); root != "" {
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("upload.fs_root: %w", err)
		}
		c.Upload.FSRoot = expanded
	}
	s3 := &c.Upload.S3
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Region = strings.TrimSpace(s3.Region)
	if s3.Region == "" {
		s3.Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	s3.Endpoint = strings.TrimRight(strings.TrimSpace(s3.Endpoint), "/")
	s3.Prefix = strings.TrimLeft(strings.TrimSpace(s3.Prefix), "/")
	if s3.Prefix != "" && !strings.HasSuffix(s3.Prefix, "/") {
		s3.Prefix += "/"
	}
	return nil
}

func (c *Config) normalizeSheet() {
	c.Sheet.URL = strings.TrimSpace(c.Sheet.URL)
	if c.Sheet.URL == "" {
		if value, ok := os.LookupEnv("PLATEBATCH_SHEET_URL"); ok {
			c.Sheet.URL = strings.TrimSpace(value)
		}
	}
	if c.Sheet.TimeoutSeconds <= 0 {
		c.Sheet.TimeoutSeconds = defaultSheetTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.Textfile)
	if path == "" {
		c.Metrics.Textfile = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	c.Metrics.Textfile = expanded
	return nil
}
