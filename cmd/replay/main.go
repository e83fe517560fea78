// Command replay runs a directory of still frames through the button
// pipeline offline and prints the tracked buttons after every frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kioskhelper/internal/app"
	"kioskhelper/internal/config"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/pipeline"
	"kioskhelper/internal/services/ai"
	"kioskhelper/internal/speech"
)

func main() {
	framesDir := flag.String("frames", "testdata/frames", "Directory containing .jpg/.png frames")
	query := flag.String("query", "", "Spoken query to match against the last frame")
	rotation := flag.Int("rotation", 0, "Display rotation in degrees")
	width := flag.Int("width", 0, "Display width (0 = rotated frame width)")
	height := flag.Int("height", 0, "Display height (0 = rotated frame height)")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logs := logger.NewLogger(cfg)
	defer logs.Close()

	perception, err := app.NewPerception(cfg, logs)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}
	defer perception.Close()

	files, err := frameFiles(*framesDir)
	if err != nil {
		log.Fatalf("Failed to read frames directory: %v", err)
	}
	if len(files) == 0 {
		fmt.Println("No frames found")
		return
	}

	ctx := context.Background()
	skipped := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", path, err)
			skipped++
			continue
		}
		img, err := ai.DecodeFrame(data)
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", path, err)
			skipped++
			continue
		}

		buttons, err := perception.Pipeline.Process(ctx, pipeline.Frame{
			Image:    img,
			Rotation: *rotation,
			DisplayW: *width,
			DisplayH: *height,
		})
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", path, err)
			skipped++
			continue
		}

		fmt.Printf("📷 %s: %d button(s)\n", filepath.Base(path), len(buttons))
		for _, b := range buttons {
			r := b.RectDisplay
			fmt.Printf("   #%-3d %-12q role=%-12s score=%.2f rect=(%.0f,%.0f,%.0f,%.0f)\n",
				b.ID, b.Text, b.Role, b.Score, r.Left, r.Top, r.Right, r.Bottom)
		}
	}

	if *query != "" {
		res := perception.Strategy.Match(ctx, *query, perception.Pipeline.Buttons())
		fmt.Printf("🔎 %q -> %s (%s)\n", *query, res.Kind, res.Strategy)
		for _, c := range res.Candidates {
			fmt.Printf("   #%-3d %-12q %.3f\n", c.Button.ID, c.Button.Label(), c.Score)
		}
		fmt.Printf("🗣️  %s\n", speech.Prompt(*query, res))
	}

	fmt.Printf("✅ Replayed %d frame(s), skipped %d\n", len(files)-skipped, skipped)
}

func frameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
