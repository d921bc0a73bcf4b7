package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/sublym/backend/internal/models"
)

// Scene is one planned segment of the final montage.
type Scene struct {
	Index    int
	Title    string
	Prompt   string
	Duration time.Duration
}

// Montage bundles the assembled outputs of a run.
type Montage struct {
	Video  []byte
	Teaser []byte
}

// Renderer produces media for each pipeline step. Implementations may call
// external generation services; DryRunRenderer synthesizes placeholder assets.
type Renderer interface {
	PlanScenes(ctx context.Context, dream models.Dream, count int, duration time.Duration) ([]Scene, error)
	RenderKeyframe(ctx context.Context, scene Scene) ([]byte, error)
	RenderSceneVideo(ctx context.Context, scene Scene, keyframe []byte) ([]byte, error)
	AssembleMontage(ctx context.Context, scenes []Scene, videos [][]byte) (Montage, error)
}

// DryRunRenderer produces deterministic placeholder assets without calling
// any generation backend. Output bytes depend only on the dream content, so
// repeated runs of the same dream yield identical artifacts.
type DryRunRenderer struct{}

// PlanScenes splits the dream description into scene prompts, cycling through
// the sentences when the description has fewer than the requested count.
func (DryRunRenderer) PlanScenes(ctx context.Context, dream models.Dream, count int, duration time.Duration) ([]Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}

	fragments := splitSentences(dream.Description)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("plan scenes: empty dream description")
	}

	scenes := make([]Scene, 0, count)
	for i := 0; i < count; i++ {
		fragment := fragments[i%len(fragments)]
		prompt := fragment
		if dream.Style != "" {
			prompt = fmt.Sprintf("%s, style: %s", fragment, dream.Style)
		}
		if len(dream.Reject) > 0 {
			prompt = fmt.Sprintf("%s, avoid: %s", prompt, strings.Join(dream.Reject, ", "))
		}
		scenes = append(scenes, Scene{
			Index:    i + 1,
			Title:    fmt.Sprintf("Scene %d", i+1),
			Prompt:   prompt,
			Duration: duration,
		})
	}

	return scenes, nil
}

// RenderKeyframe synthesizes a deterministic placeholder image for the scene.
func (DryRunRenderer) RenderKeyframe(ctx context.Context, scene Scene) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return placeholderAsset("keyframe", scene.Prompt), nil
}

// RenderSceneVideo synthesizes a deterministic placeholder clip seeded by the
// scene prompt and its keyframe.
func (DryRunRenderer) RenderSceneVideo(ctx context.Context, scene Scene, keyframe []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := fmt.Sprintf("%s|%x", scene.Prompt, sha256.Sum256(keyframe))
	return placeholderAsset("video", seed), nil
}

// AssembleMontage concatenates the scene clips and derives a teaser from the
// first scene.
func (DryRunRenderer) AssembleMontage(ctx context.Context, scenes []Scene, videos [][]byte) (Montage, error) {
	if err := ctx.Err(); err != nil {
		return Montage{}, err
	}
	if len(videos) == 0 {
		return Montage{}, fmt.Errorf("assemble montage: no scene videos")
	}
	if len(videos) != len(scenes) {
		return Montage{}, fmt.Errorf("assemble montage: %d videos for %d scenes", len(videos), len(scenes))
	}

	var final []byte
	for _, clip := range videos {
		final = append(final, clip...)
	}

	return Montage{
		Video:  final,
		Teaser: placeholderAsset("teaser", fmt.Sprintf("%x", sha256.Sum256(videos[0]))),
	}, nil
}

func placeholderAsset(kind, seed string) []byte {
	sum := sha256.Sum256([]byte(kind + ":" + seed))
	return []byte(fmt.Sprintf("SUBLYM-%s:%x", strings.ToUpper(kind), sum))
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})

	var fragments []string
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fragments = append(fragments, trimmed)
		}
	}
	return fragments
}
