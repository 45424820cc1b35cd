package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/vidfetch/internal/delivery"
	logx "github.com/wapuda/vidfetch/internal/logs"
	"github.com/wapuda/vidfetch/internal/media"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/localtest <url> [format-id] [start-end]")
		return
	}
	logx.Setup(logx.FromEnv("localtest"))
	ctx := context.Background()

	extractor := media.NewYTDLP(media.YTDLPConfig{})
	url := os.Args[1]

	cat, err := extractor.Catalog(ctx, url)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog")
	}
	formats := media.SurfaceFormats(cat.Formats, 5, 0)
	if len(os.Args) < 3 {
		fmt.Println("Title:", cat.Title)
		for _, f := range formats {
			fmt.Printf("  %-8s %s\n", f.ID, media.Label(f))
		}
		return
	}

	var chosen *media.Format
	for i := range cat.Formats {
		if cat.Formats[i].ID == os.Args[2] {
			chosen = &cat.Formats[i]
			break
		}
	}
	if chosen == nil {
		log.Fatal().Str("format", os.Args[2]).Msg("format not offered for this url")
	}

	req := media.Request{URL: url, Title: cat.Title, Format: *chosen, Dir: "./out"}
	if len(os.Args) > 3 {
		w, err := media.ParseTrimWindow(strings.Join(os.Args[3:], " "))
		if err != nil {
			log.Fatal().Err(err).Msg("trim window")
		}
		req.Trim = &w
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create out dir")
	}

	ff, err := media.NewFFmpeg()
	if err != nil {
		log.Fatal().Err(err).Msg("ffmpeg")
	}
	art, err := media.NewPipeline(extractor, ff).Run(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline")
	}

	fmt.Println("Generated:", art.Path)
	fmt.Println("Size:", humanize.IBytes(uint64(art.Size)), "Route:", delivery.Choose(art.Size, delivery.DefaultLimit))
	if art.HasThumbnail() {
		fmt.Println("Thumbnail:", art.Thumbnail.Path)
	} else if art.ThumbErr != nil {
		fmt.Println("Thumbnail skipped:", art.ThumbErr)
	}
	fmt.Println("Caption:", delivery.Caption(art))
}
