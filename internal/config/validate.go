package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateSlicer(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == c.Paths.OutputDir {
		return errors.New("paths.work_dir and paths.output_dir must differ")
	}
	if strings.TrimSpace(c.Paths.Template) == "" {
		return errors.New("paths.template must be set")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.MaxObjects <= 0 {
		return errors.New("batch.max_objects must be positive")
	}
	if c.Batch.IDWidth < 0 {
		return errors.New("batch.id_width must be >= 0")
	}
	switch c.Batch.Naming {
	case NamingIndex, NamingRange:
	default:
		return fmt.Errorf("batch.naming must be %q or %q, got %q", NamingIndex, NamingRange, c.Batch.Naming)
	}
	return nil
}

func (c *Config) validateSlicer() error {
	if !c.Slicer.Enabled {
		return nil
	}
	if c.Slicer.TimeoutSeconds <= 0 {
		return errors.New("slicer.timeout_seconds must be positive when slicer.enabled is true")
	}
	switch c.Slicer.PrinterTechnology {
	case "FFF", "SLA":
	default:
		return fmt.Errorf("slicer.printer_technology must be FFF or SLA, got %q", c.Slicer.PrinterTechnology)
	}
	return nil
}

func (c *Config) validateUpload() error {
	if !c.Upload.Enabled {
		return nil
	}
	switch c.Upload.Driver {
	case UploadDriverFS:
		if c.Upload.FSRoot == "" {
			return errors.New("upload.fs_root must be set when upload.driver is fs")
		}
	case UploadDriverS3:
		if c.Upload.S3.Bucket == "" {
			return errors.New("upload.s3.bucket must be set when upload.driver is s3")
		}
		if c.Upload.S3.Region == "" {
			return errors.New("upload.s3.region must be set when upload.driver is s3 (or set AWS_REGION)")
		}
	default:
		return fmt.Errorf("upload.driver must be %q or %q, got %q", UploadDriverFS, UploadDriverS3, c.Upload.Driver)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
