package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestDryRunRendererPlansScenes(t *testing.T) {
	renderer := DryRunRenderer{}

	scenes, err := renderer.PlanScenes(context.Background(), testDream(), 3, 6*time.Second)
	if err != nil {
		t.Fatalf("plan scenes: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
	for i, scene := range scenes {
		if scene.Index != i+1 {
			t.Fatalf("scene %d has index %d", i, scene.Index)
		}
		if !strings.Contains(scene.Prompt, "style: cinematic_soft") {
			t.Fatalf("scene prompt missing style: %q", scene.Prompt)
		}
		if !strings.Contains(scene.Prompt, "avoid: spiders") {
			t.Fatalf("scene prompt missing reject terms: %q", scene.Prompt)
		}
	}
}

func TestDryRunRendererCyclesShortDescriptions(t *testing.T) {
	renderer := DryRunRenderer{}
	dream := testDream()
	dream.Description = "One single sentence"

	scenes, err := renderer.PlanScenes(context.Background(), dream, 4, 6*time.Second)
	if err != nil {
		t.Fatalf("plan scenes: %v", err)
	}
	if len(scenes) != 4 {
		t.Fatalf("expected 4 scenes, got %d", len(scenes))
	}
}

func TestDryRunRendererRejectsEmptyDream(t *testing.T) {
	renderer := DryRunRenderer{}
	dream := testDream()
	dream.Description = "   \n  "

	if _, err := renderer.PlanScenes(context.Background(), dream, 3, 6*time.Second); err == nil {
		t.Fatalf("expected error for empty description")
	}
}

func TestDryRunRendererIsDeterministic(t *testing.T) {
	renderer := DryRunRenderer{}
	scene := Scene{Index: 1, Prompt: "a silver ocean, style: cinematic_soft"}

	first, err := renderer.RenderKeyframe(context.Background(), scene)
	if err != nil {
		t.Fatalf("render keyframe: %v", err)
	}
	second, err := renderer.RenderKeyframe(context.Background(), scene)
	if err != nil {
		t.Fatalf("render keyframe: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical keyframes for the same prompt")
	}

	clipA, err := renderer.RenderSceneVideo(context.Background(), scene, first)
	if err != nil {
		t.Fatalf("render video: %v", err)
	}
	clipB, err := renderer.RenderSceneVideo(context.Background(), scene, second)
	if err != nil {
		t.Fatalf("render video: %v", err)
	}
	if !bytes.Equal(clipA, clipB) {
		t.Fatalf("expected identical clips for the same inputs")
	}
}

func TestDryRunRendererMontageValidation(t *testing.T) {
	renderer := DryRunRenderer{}
	scenes := []Scene{{Index: 1}, {Index: 2}}

	if _, err := renderer.AssembleMontage(context.Background(), scenes, nil); err == nil {
		t.Fatalf("expected error when no videos are supplied")
	}
	if _, err := renderer.AssembleMontage(context.Background(), scenes, [][]byte{{1}}); err == nil {
		t.Fatalf("expected error on scene/video count mismatch")
	}

	montage, err := renderer.AssembleMontage(context.Background(), scenes, [][]byte{{1, 2}, {3, 4}})
	if err != nil {
		t.Fatalf("assemble montage: %v", err)
	}
	if !bytes.Equal(montage.Video, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected montage bytes: %v", montage.Video)
	}
	if len(montage.Teaser) == 0 {
		t.Fatalf("expected teaser bytes")
	}
}
