// Command annotate edits an image's annotations through a running API,
// driving the same editor session an interactive client would.
//
// Usage:
//
//	annotate [flags] list
//	annotate [flags] dot X Y
//	annotate [flags] arrow X1 Y1 X2 Y2
//	annotate [flags] hide ID
//	annotate [flags] label ID TEXT
//	annotate [flags] delete ID
//	annotate [flags] render
//	annotate token -secret S -user U [-role USER|ADMIN] [-ttl 24h]
//
// Coordinates are pixels inside a viewport of -width by -height.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/auth"
	"github.com/image-annotator/backend/internal/client"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/interaction"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/render"
	"github.com/image-annotator/backend/internal/store"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	api := flag.String("api", envOr("ANNOTATOR_API", "http://localhost:8080"), "Base URL of the annotation API")
	token := flag.String("token", os.Getenv("ANNOTATOR_TOKEN"), "Bearer token to act with")
	imageID := flag.String("image", "", "Image to annotate")
	width := flag.Float64("width", 0, "Viewport width in pixels (defaults to the image width)")
	height := flag.Float64("height", 0, "Viewport height in pixels (defaults to the image height)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *imageID == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, *api, *token, *imageID, logger)
	if err != nil {
		report(logger, "Failed to open image", err, zap.String("image_id", *imageID))
		os.Exit(1)
	}

	viewport := geometry.Rect{Width: *width, Height: *height}
	if viewport.Width <= 0 {
		viewport.Width = float64(s.store.Image().Width)
	}
	if viewport.Height <= 0 {
		viewport.Height = float64(s.store.Image().Height)
	}
	if viewport.Size().Empty() {
		viewport.Width, viewport.Height = 100, 100
	}
	s.viewport = viewport

	if err := s.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		report(logger, "Command failed", err, zap.String("command", flag.Arg(0)))
		os.Exit(1)
	}
}

// report prints API errors of a known kind as a plain message and logs
// anything else with full context.
func report(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	if client.IsKind(err) {
		fmt.Fprintln(os.Stderr, "annotate:", err)
		return
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// session is one editor session on one image.
type session struct {
	store    *store.Store
	editor   *interaction.Controller
	viewport geometry.Rect
	logger   *zap.Logger
}

func openSession(ctx context.Context, api, token, imageID string, logger *zap.Logger) (*session, error) {
	var actor *models.Actor
	if token != "" {
		claims, err := auth.PeekClaims(token)
		if err != nil {
			return nil, err
		}
		actor = claims.Actor()
	}

	c, err := client.New(api, client.WithToken(token), client.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	image, err := c.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	s := store.New(c, *image, actor,
		store.WithLogger(logger),
		store.WithNotifier(store.NotifierFunc(func(err error) {
			logger.Warn("Annotation operation failed", zap.Error(err))
		})),
	)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	style := render.DefaultStyle()
	style.ShowLabels = true

	return &session{
		store:  s,
		editor: interaction.NewController(s, interaction.DefaultLabels(), style, logger),
		logger: logger,
	}, nil
}

func (s *session) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list":
		return s.list()
	case "dot":
		points, err := parseFloats(args, 2)
		if err != nil {
			return err
		}
		return s.draw(ctx, interaction.ToolDot, points)
	case "arrow":
		points, err := parseFloats(args, 4)
		if err != nil {
			return err
		}
		return s.draw(ctx, interaction.ToolArrow, points)
	case "hide":
		if len(args) != 1 {
			return errors.New("usage: hide ID")
		}
		return s.store.ToggleVisibility(ctx, args[0])
	case "label":
		if len(args) != 2 {
			return errors.New("usage: label ID TEXT")
		}
		label := args[1]
		_, err := s.store.Update(ctx, args[0], models.UpdateAnnotationRequest{Label: &label})
		return err
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete ID")
		}
		return s.store.Delete(ctx, args[0])
	case "render":
		return s.editor.Scene().WriteSVG(os.Stdout, s.viewport.Size())
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// draw arms tool and clicks each pixel pair in points.
func (s *session) draw(ctx context.Context, tool interaction.Tool, points []float64) error {
	state := s.editor.SelectTool(tool)
	if state.SignInRequired {
		return errors.New("sign in to annotate")
	}
	if state.Tool() != tool {
		return fmt.Errorf("%w: cannot annotate this image", models.ErrPermission)
	}

	before := len(s.store.List())
	for i := 0; i+1 < len(points); i += 2 {
		e := geometry.PointerEvent{ClientX: points[i], ClientY: points[i+1]}
		if err := s.editor.Click(ctx, e, s.viewport); err != nil {
			return err
		}
	}

	list := s.store.List()
	if len(list) > before {
		fmt.Println(list[len(list)-1].ID)
	}
	return nil
}

func (s *session) list() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tX\tY\tEND\tHIDDEN\tLABEL")
	for _, a := range s.store.List() {
		end := "-"
		if p, ok := a.End(); ok {
			end = geometry.FormatFloat(p.X) + "," + geometry.FormatFloat(p.Y)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			a.ID, a.Type, geometry.FormatFloat(a.X), geometry.FormatFloat(a.Y), end, a.IsHidden, a.Label)
	}
	return w.Flush()
}

func parseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d coordinates, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q: %w", arg, err)
		}
		out[i] = v
	}
	return out, nil
}

// issueToken handles the token subcommand.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "Signing secret shared with the API")
	user := fs.String("user", "", "User ID to issue the token for")
	role := fs.String("role", string(models.RoleUser), "Role: USER or ADMIN")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("-user is required")
	}

	token, err := auth.IssueToken(*secret, *user, models.Role(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
