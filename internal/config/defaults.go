package config

const (
	defaultConfigPath        = "~/.config/platebatch/config.toml"
	defaultSpecimenDir       = "~/.local/share/platebatch/specimens"
	defaultTemplate          = "~/.local/share/platebatch/template.3mf"
	defaultOutputDir         = "~/platebatch"
	defaultWorkDir           = "~/.cache/platebatch/work"
	defaultStateDir          = "~/.local/share/platebatch"
	defaultLogDir            = "~/.local/share/platebatch/logs"
	defaultMaxObjects        = 6
	defaultIDWidth           = 3
	defaultBaseName          = "batch"
	defaultNaming            = NamingIndex
	defaultSlicerBinary      = "prusa-slicer"
	defaultSlicerTimeout     = 600
	defaultPrinterTechnology = "FFF"
	defaultUploadDriver      = UploadDriverFS
	defaultSheetTimeout      = 30
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Output naming modes.
const (
	NamingIndex = "index"
	NamingRange = "range"
)

// Upload drivers.
const (
	UploadDriverFS = "fs"
	UploadDriverS3 = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SpecimenDir: defaultSpecimenDir,
			Template:    defaultTemplate,
			OutputDir:   defaultOutputDir,
			WorkDir:     defaultWorkDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Batch: Batch{
			MaxObjects: defaultMaxObjects,
			IDWidth:    defaultIDWidth,
			BaseName:   defaultBaseName,
			Naming:     defaultNaming,
		},
		Slicer: Slicer{
			Binary:            defaultSlicerBinary,
			TimeoutSeconds:    defaultSlicerTimeout,
			PrinterTechnology: defaultPrinterTechnology,
		},
		Upload: Upload{
			Driver: defaultUploadDriver,
		},
		Sheet: Sheet{
			TimeoutSeconds: defaultSheetTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
