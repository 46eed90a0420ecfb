package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
)

const (
	timeFormatJSON     = time.RFC3339
	timeFormatTerminal = "2006-01-02 15:04"
)

var (
	listLimit  int
	listOldest bool
	listStatus string
	listFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported posts",
	RunE:  listAction,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of posts to show (0 for all)")
	listCmd.Flags().BoolVar(&listOldest, "oldest", false, "show oldest posts first")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only show posts with this status (default: all but trash)")
	listCmd.Flags().StringVar(&listFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(listCmd)
}

func listAction(cmd *cobra.Command, _ []string) error {
	if listFormat != "terminal" && listFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", listFormat)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	statuses := store.LiveStatuses
	if listStatus != "" {
		statuses = []string{listStatus}
	}

	limit := listLimit
	if limit < 0 {
		limit = 0
	}

	ctx := commandContext(cmd)
	found, err := a.store.FindRecords(ctx, store.Filter{
		Type:         record.Type,
		Statuses:     statuses,
		OrderMetaKey: record.MetaCreated,
		Descending:   !listOldest,
		Limit:        limit,
	})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	posts := make([]record.Imported, 0, len(found))
	for _, sr := range found {
		posts = append(posts, record.FromStore(sr))
	}

	if listFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(toJSONRecords(posts))
	}

	if len(posts) == 0 {
		fmt.Println("No posts imported yet. Run 'tagwatch import' first.")
		return nil
	}
	fmt.Println(paint(headerStyle, fmt.Sprintf("#%s: %d posts", hashtagOrDefault(ctx, a), len(posts))))
	fmt.Println()
	printRecords(os.Stdout, posts)
	return nil
}

func printRecords(w io.Writer, posts []record.Imported) {
	for _, p := range posts {
		fmt.Fprintf(w, "%s  %s\n",
			paint(titleStyle, p.Title),
			paint(statusStyle, "["+p.Status+"]"),
		)
		meta := []string{paint(authorStyle, "@"+p.Author)}
		if p.Created > 0 {
			meta = append(meta, p.CreatedAt().Local().Format(timeFormatTerminal))
		}
		if p.Published {
			meta = append(meta, "published")
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(meta, "  "))
		if p.OriginalURL != "" {
			fmt.Fprintf(w, "  %s\n", paint(dimStyle, p.OriginalURL))
		}
	}
}

type jsonRecord struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Status      string              `json:"status"`
	Text        string              `json:"text"`
	Author      string              `json:"original_author"`
	Service     string              `json:"service"`
	ServiceID   string              `json:"service_id"`
	PhotoURL    string              `json:"photo_url,omitempty"`
	VideoURL    string              `json:"video_url,omitempty"`
	OriginalURL string              `json:"original_url"`
	Created     string              `json:"created"`
	Published   bool                `json:"published"`
	Attachments []record.Attachment `json:"attachments,omitempty"`
}

func toJSONRecords(posts []record.Imported) []jsonRecord {
	out := make([]jsonRecord, 0, len(posts))
	for _, p := range posts {
		out = append(out, jsonRecord{
			ID:          p.ID,
			Title:       p.Title,
			Status:      p.Status,
			Text:        p.Text,
			Author:      p.Author,
			Service:     p.Service,
			ServiceID:   p.ServiceID,
			PhotoURL:    p.PhotoURL,
			VideoURL:    p.VideoURL,
			OriginalURL: p.OriginalURL,
			Created:     p.CreatedAt().UTC().Format(timeFormatJSON),
			Published:   p.Published,
			Attachments: p.Attachments,
		})
	}
	return out
}

func hashtagOrDefault(ctx context.Context, a *app) string {
	tag, err := settings.Hashtag(ctx, a.settings)
	if err != nil {
		return settings.DefaultHashtag
	}
	return tag
}
