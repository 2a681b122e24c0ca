package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/use-agent/tokscrape/browser"
	"github.com/use-agent/tokscrape/models"
	"github.com/use-agent/tokscrape/scraper"
)

var pretty bool

var profileCmd = &cobra.Command{
	Use:     "profile <username>",
	Short:   "Extract one profile and print it as JSON",
	Example: "tokscrape profile charlidamelio",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(func(ctx context.Context, sc *scraper.Scraper) (models.Record, error) {
			return sc.Profile(ctx, args[0])
		})
	},
}

var videoCmd = &cobra.Command{
	Use:     "video <url>",
	Short:   "Extract one video and print it as JSON",
	Example: "tokscrape video https://www.tiktok.com/@user/video/7234567890123456789",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(func(ctx context.Context, sc *scraper.Scraper) (models.Record, error) {
			return sc.Video(ctx, args[0])
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{profileCmd, videoCmd} {
		c.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	}
}

// oneShot runs a single extraction with its own session manager. SIGINT
// cancels the extraction and still tears the browser down.
func oneShot(run func(context.Context, *scraper.Scraper) (models.Record, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = scraper.WithRequestID(ctx, uuid.New().String())

	mgr := browser.NewManager(cfg.Browser)
	defer mgr.Shutdown()

	sc := scraper.New(cfg, mgr)
	defer sc.Close()

	rec, err := run(ctx, sc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rec)
}
