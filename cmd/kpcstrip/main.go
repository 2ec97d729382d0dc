package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/htol/kpcstrip/drmcore"
	"github.com/htol/kpcstrip/mazama"
	"github.com/htol/kpcstrip/mobi"
	"github.com/htol/kpcstrip/pid"
	"github.com/htol/kpcstrip/topaz"
)

func buildLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// normalizePID accepts either an 8-character PID or a 10-character PID
// with a trailing checksum, verifying and truncating the latter.
func normalizePID(raw string) (string, error) {
	switch len(raw) {
	case 8:
		return raw, nil
	case 10:
		if !mazama.VerifyPID(raw) {
			return "", fmt.Errorf("PID %q fails checksum verification", raw)
		}
		return raw[:8], nil
	default:
		return "", fmt.Errorf("PID %q must be 8 or 10 characters", raw)
	}
}

func loadCredentials(path string, logger *slog.Logger) (*pid.Store, error) {
	if path == "" {
		located, err := pid.LocateCredentialsFile()
		if err != nil {
			return nil, err
		}
		logger.Debug("located credentials file", "path", located)
		path = located
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, drmcore.Wrap(drmcore.MissingCredential, "reading credentials file", err)
	}
	return pid.Parse(raw), nil
}

// dumpCredentials logs every stored credential at debug level, decrypted
// and transcoded from CP1252 where possible; entries that fail to decrypt
// are logged with their raw Mazama-encoded value instead.
func dumpCredentials(p *pid.Pipeline, logger *slog.Logger) {
	for _, key := range p.Store.Keys() {
		name, ok := pid.KnownKeyNames[key]
		if !ok {
			name = key
		}
		encoded, _ := p.Store.Get(key)

		raw, err := p.DecryptStored(key)
		if err != nil {
			logger.Debug("credential (raw, undecrypted)", "key", name, "value", encoded)
			continue
		}
		val, err := pid.DecodeDiagnosticValue(raw)
		if err != nil {
			val = string(raw)
		}
		logger.Debug("credential", "key", name, "value", val)
	}
}

// dumpContainerMetadata logs diagnostic-only container fields for -v:
// Mobi's EXTH records, or Topaz's metadata map. Parse failures here are
// not fatal to the dump — the real Strip call below reports them properly.
func dumpContainerMetadata(data []byte, logger *slog.Logger) {
	format, err := drmcore.Sniff(data)
	if err != nil {
		return
	}
	switch format {
	case drmcore.FormatMobi:
		c, err := mobi.Parse(data)
		if err != nil {
			return
		}
		for _, entry := range c.Exth.DumpEXTH() {
			logger.Debug("exth record", "name", entry.Name, "value", string(entry.Data))
		}
	case drmcore.FormatTopaz:
		c, err := topaz.Parse(data)
		if err != nil {
			return
		}
		for k, v := range c.Metadata {
			logger.Debug("topaz metadata", "key", k, "value", v)
		}
	}
}

func run(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	credsPath, _ := cmd.Flags().GetString("kindle-info")
	extraPIDs, _ := cmd.Flags().GetStringArray("pid")
	explode, _ := cmd.Flags().GetBool("decompress")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if credsPath == "" && cfg.CredentialsPath != nil {
		credsPath = *cfg.CredentialsPath
	}
	if !cmd.Flags().Changed("decompress") && cfg.Decompress != nil {
		explode = *cfg.Decompress
	}
	extraPIDs = append(append([]string(nil), cfg.ExtraPIDs...), extraPIDs...)

	logger := buildLogger(os.Stderr, verbose)

	candidates := make([]string, 0, len(extraPIDs))
	for _, raw := range extraPIDs {
		norm, err := normalizePID(raw)
		if err != nil {
			return err
		}
		candidates = append(candidates, norm)
	}

	var pipeline *pid.Pipeline
	store, err := loadCredentials(credsPath, logger)
	if err != nil {
		logger.Debug("credentials unavailable, relying on -p candidates only", "error", err)
	} else {
		pipeline = pid.NewPipeline(store)
		if verbose {
			dumpCredentials(pipeline, logger)
		}
		if diag, err := pipeline.DeviceDiagnosticPID(); err == nil {
			logger.Debug("device PID", "pid", diag)
		}
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return drmcore.Wrap(drmcore.Io, "reading input file", err)
	}
	if verbose {
		dumpContainerMetadata(data, logger)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return drmcore.Wrap(drmcore.Io, "creating output file", err)
	}

	stripErr := drmcore.Strip(data, out, drmcore.Options{
		ExtraPIDs: candidates,
		Pipeline:  pipeline,
		Explode:   explode,
	})
	closeErr := out.Close()

	if stripErr != nil {
		os.Remove(outputPath)
		return stripErr
	}
	if closeErr != nil {
		os.Remove(outputPath)
		return drmcore.Wrap(drmcore.Io, "closing output file", closeErr)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpcstrip",
		Short: "Remove DRM from Kindle-For-PC Mobipocket and Topaz e-book containers",
		RunE:  run,
	}
	cmd.SetErr(os.Stderr)
	cmd.Flags().String("config", "", "Path to an optional kpcstrip.yaml (credentials path, extra PIDs, default -d)")
	cmd.Flags().StringP("input", "i", "", "Input file path (required)")
	cmd.Flags().StringP("output", "o", "", "Output file path (required)")
	cmd.Flags().StringP("kindle-info", "k", "", "Path to kindle.info credentials file (auto-located if omitted)")
	cmd.Flags().StringArrayP("pid", "p", nil, "Extra candidate PID (8 chars, or 10 with checksum); may be repeated")
	cmd.Flags().BoolP("decompress", "d", false, "Inflate compressed Topaz payload records on output")
	cmd.Flags().BoolP("verbose", "v", false, "Dump decrypted credentials and diagnostic PIDs to the log")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
