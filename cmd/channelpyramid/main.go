package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"channelpyramid/pkg/config"
	"channelpyramid/pkg/convert"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s convert <input_dir> <output_path> [--pixel-size FLOAT] [--config FILE]\n",
		filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "Converts a directory of single-channel TIF files into a pyramidal OME-TIFF.\n")
}

func main() {
	if len(os.Args) < 2 || os.Args[1] != "convert" {
		usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	pixelSize := fs.Float64("pixel-size", 0, "Pixel size in µm (default: from config)")
	configPath := fs.String("config", "", "Optional YAML config file")
	fs.Usage = usage

	// Accept flags before or after the positional arguments
	flagArgs, posArgs := splitArgs(os.Args[2:])
	if err := fs.Parse(flagArgs); err != nil {
		os.Exit(1)
	}
	posArgs = append(posArgs, fs.Args()...)

	if len(posArgs) != 2 {
		usage()
		os.Exit(1)
	}
	inputDir, outputPath := posArgs[0], posArgs[1]

	if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
		log.Fatalf("Input directory not found: %s", inputDir)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *pixelSize > 0 {
		cfg.Image.PixelSizeMicrons = *pixelSize
	}

	// Create output parent directories as needed
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	converter := convert.NewConverter(&convert.Params{
		InputDir:         inputDir,
		OutputPath:       outputPath,
		PixelSizeMicrons: cfg.Image.PixelSizeMicrons,
		PyramidLevels:    cfg.Pyramid.Levels,
		TileSize:         cfg.Pyramid.TileSize,
		Verbose:          cfg.Output.Verbose,
	})

	startTime := time.Now()
	if err := converter.Process(); err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}
	fmt.Printf("Conversion completed in %.2f seconds\n", time.Since(startTime).Seconds())
}

// splitArgs separates flag arguments from positional ones so flags may follow
// the positionals. Both flags take a value, so a flag without "=" consumes
// the next argument.
func splitArgs(args []string) (flagArgs, posArgs []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			flagArgs = append(flagArgs, a)
			if !strings.Contains(a, "=") && i+1 < len(args) {
				i++
				flagArgs = append(flagArgs, args[i])
			}
			continue
		}
		posArgs = append(posArgs, a)
	}
	return flagArgs, posArgs
}
