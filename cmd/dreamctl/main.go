package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublym/backend/internal/config"
	"github.com/sublym/backend/internal/draft"
	"github.com/sublym/backend/internal/genclient"
	"github.com/sublym/backend/internal/media"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/wizard"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("expected command: create or resume")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	switch args[0] {
	case "create":
		return runCreate(ctx, cfg, logger, args[1:])
	case "resume":
		return runResume(ctx, cfg, logger, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newController(cfg config.Config, logger *slog.Logger, token, returnURL string) (*wizard.Controller, *genclient.Client) {
	client := genclient.New(cfg.APIBaseURL, cfg.RequestTimeout)
	if token != "" {
		client.SetToken(token)
	}

	drafts := draft.NewStore(draft.NewFileKV(cfg.DraftPath), cfg.DraftTTL, logger)

	ctrl := wizard.NewController(client, drafts, logger)
	ctrl.PollInterval = cfg.PollInterval
	ctrl.ResumeDelay = cfg.ResumeDelay
	if returnURL != "" {
		ctrl.ReturnURL = returnURL
	}

	return ctrl, client
}

func runCreate(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	photoList := fs.String("photos", "", "comma-separated photo files (at least one)")
	dreamText := fs.String("dream", "", "dream description (at least 20 characters)")
	rejectText := fs.String("reject", "", "comma-separated elements to avoid")
	plan := fs.String("plan", models.PlanSmile, "subscription plan: level_1|level_2|level_3|smile")
	period := fs.String("period", models.BillingMonthly, "billing period: monthly|yearly")
	email := fs.String("email", "", "account email (required when not logged in)")
	password := fs.String("password", "", "account password (required when not logged in)")
	token := fs.String("token", "", "existing access token")
	returnURL := fs.String("return-url", "http://localhost:5173/create", "url the payment provider redirects back to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl, client := newController(cfg, logger, *token, *returnURL)

	photos, err := loadPhotos(*photoList)
	if err != nil {
		return err
	}
	ctrl.AddPhotos(photos...)

	if !ctrl.SubmitDream(*dreamText, *rejectText) {
		return fmt.Errorf("dream rejected: need at least one photo and a description of 20+ characters")
	}

	ctrl.SelectPlan(*plan, *period)

	redirect, err := ctrl.Checkout(ctx)
	if errors.Is(err, wizard.ErrRegistrationRequired) {
		if *email == "" || *password == "" {
			return fmt.Errorf("no session: pass -email and -password to create an account")
		}
		redirect, err = ctrl.Register(ctx, *email, *password)
	}
	if err != nil {
		return fmt.Errorf("checkout failed: %s", ctrl.LastError())
	}

	if redirect != "" {
		fmt.Println("Complete the payment in your browser:")
		fmt.Println("  " + redirect)
		fmt.Println("Then finish with: dreamctl resume -url '<redirect back url>' -token '" + accessToken(client) + "'")
		return nil
	}

	return awaitResult(ctx, ctrl)
}

func runResume(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	rawURL := fs.String("url", "", "the url the payment provider redirected back to")
	token := fs.String("token", "", "access token printed by dreamctl create")
	returnURL := fs.String("return-url", "http://localhost:5173/create", "url the payment provider redirects back to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *rawURL == "" {
		return fmt.Errorf("-url is required")
	}
	parsed, err := url.Parse(*rawURL)
	if err != nil {
		return fmt.Errorf("parse return url: %w", err)
	}

	ctrl, _ := newController(cfg, logger, *token, *returnURL)

	ctrl.HandleReturn(ctx, parsed.Query())

	switch ctrl.State() {
	case wizard.StatePending:
		return awaitResult(ctx, ctrl)
	case wizard.StatePaymentCancelled:
		fmt.Println("Payment was cancelled. Your draft is saved; run dreamctl create again or retry the payment.")
		return nil
	case wizard.StatePaymentError, wizard.StatePayment:
		return fmt.Errorf("resume failed: %s", ctrl.LastError())
	default:
		return fmt.Errorf("nothing to resume (state %s)", ctrl.State())
	}
}

func awaitResult(ctx context.Context, ctrl *wizard.Controller) error {
	fmt.Println("Generation started, waiting for the dream video...")
	ctrl.PollUntilDone(ctx)

	run := ctrl.Run()
	switch run.Status {
	case models.RunStatusCompleted:
		fmt.Println("Dream video ready:")
		fmt.Println("  video:  " + run.VideoURL)
		if run.TeaserURL != "" {
			fmt.Println("  teaser: " + run.TeaserURL)
		}
		return nil
	case models.RunStatusCancelled:
		fmt.Println("Generation was cancelled.")
		return nil
	default:
		if run.Error != "" {
			return fmt.Errorf("generation failed: %s", run.Error)
		}
		return fmt.Errorf("generation did not complete (status %q)", run.Status)
	}
}

func loadPhotos(list string) ([]media.Attachment, error) {
	var photos []media.Attachment
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read photo %s: %w", path, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		photos = append(photos, media.Attachment{
			Name: filepath.Base(path),
			Type: mimeType,
			Data: data,
		})
	}
	return photos, nil
}

func accessToken(client *genclient.Client) string {
	if client.Authenticated() {
		return client.Token()
	}
	return ""
}
