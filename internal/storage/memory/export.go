package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/RepairMe/extension/internal/storage/memory/export/v1"
	"github.com/RepairMe/extension/pkg/core"
)

var fileNameReplacer = strings.NewReplacer(" ", "_", ":", "_", "'", "", "/", "_", "\\", "_")

// exportJSON writes the session data to a JSON file, gzipped when configured.
func (b *Backend) exportJSON() error {
	export := v1.Build(&v1.SessionData{
		Session:          *b.session,
		ExtensionVersion: b.version,
		Snapshots:        b.snapshots,
	})

	name := fileNameReplacer.Replace(b.session.Character.Name)
	if name == "" {
		name = "session"
	}
	if world := fileNameReplacer.Replace(b.session.Character.World); world != "" {
		name += "_" + world
	}
	timestamp := b.session.LoginTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s_%d.json", name, timestamp, b.session.ID)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		CharacterName:   b.session.Character.Name,
		World:           b.session.Character.World,
		SessionDuration: b.session.Duration(b.session.LogoutTime).Seconds(),
		Snapshots:       len(b.snapshots),
		Tag:             b.cfg.Tag,
	}
	return nil
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return f.Close()
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return f.Close()
}
