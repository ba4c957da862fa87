package cli

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/glasshq/glass/internal/app"
	"github.com/glasshq/glass/internal/browser"
)

// NewBrowseCmd creates the browse command.
func NewBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse <url>",
		Short: "Open a URL and run the browser core until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd.Context(), args[0])
		},
	}
}

func runBrowse(ctx context.Context, url string) error {
	manager, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := manager.Get()

	if url != "" {
		url = normalizeURL(url)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logSink)
	if err != nil {
		return err
	}

	if err := manager.Watch(); err != nil {
		log.Warn().Err(err).Msg("config watch unavailable")
	}

	return a.Run(ctx, url)
}

// normalizeURL adds an https scheme to bare hostnames.
func normalizeURL(url string) string {
	if strings.Contains(url, "://") || strings.HasPrefix(url, "about:") {
		return url
	}
	return "https://" + url
}

// logSink reports tab notifications on the console; a real embedder
// replaces this with its own presentation layer.
func logSink(tab *browser.Tab, ev browser.TabEvent) {
	switch e := ev.(type) {
	case browser.AddressChanged:
		log.Info().Str("tab_id", tab.ID()).Str("url", e.URL).Msg("address changed")
	case browser.TitleChanged:
		log.Info().Str("tab_id", tab.ID()).Str("title", e.Title).Msg("title changed")
	case browser.LoadingStateChanged:
		log.Debug().
			Str("tab_id", tab.ID()).
			Bool("loading", e.IsLoading).
			Bool("can_go_back", e.CanGoBack).
			Bool("can_go_forward", e.CanGoForward).
			Msg("loading state changed")
	case browser.LoadError:
		log.Warn().
			Str("tab_id", tab.ID()).
			Str("url", e.URL).
			Str("error", e.ErrorText).
			Msg("load error")
	case browser.DownloadUpdated:
		log.Info().
			Str("tab_id", tab.ID()).
			Str("file", e.SuggestedFileName).
			Int64("received", e.ReceivedBytes).
			Int64("total", e.TotalBytes).
			Bool("complete", e.IsComplete).
			Msg("download updated")
	case browser.FindResult:
		log.Debug().
			Str("tab_id", tab.ID()).
			Int("count", e.Count).
			Int("ordinal", e.ActiveMatchOrdinal).
			Msg("find result")
	}
}
