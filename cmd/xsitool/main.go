// xsitool is a CLI utility for working with Battlezone 2 XSI scene files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/bzxsi/internal/config"
	"github.com/Faultbox/bzxsi/internal/logger"
	"github.com/Faultbox/bzxsi/pkg/math"
	"github.com/Faultbox/bzxsi/pkg/xsi"
)

func main() {
	config.ParseFlags()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	rest := args[1:]

	switch command {
	case "info":
		cmdInfo(cfg, rest)
	case "tree":
		cmdTree(cfg, rest)
	case "validate", "check":
		cmdValidate(cfg, rest)
	case "rewrite":
		cmdRewrite(cfg, rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`xsitool - Battlezone 2 XSI scene file utility

Usage:
  xsitool [flags] <command> [options]

Flags:
  -config <path>   Use a specific config file
  -debug           Enable debug logging
  -strict          Fail on duplicate frame names

Commands:
  info <file.xsi>               Show scene statistics
  tree <file.xsi>               Print the frame hierarchy
  validate <file.xsi>...        Parse files and report problems
  rewrite <in.xsi> <out.xsi>    Parse and re-emit in canonical form

Examples:
  xsitool info avtank00.xsi
  xsitool tree avtank00.xsi
  xsitool validate models/*.xsi
  xsitool rewrite -no-anims -no-envelopes avtank00.xsi clean.xsi`)
}

// load parses one file with the configured options. A truncated file is
// reported but still yields its partial scene.
func load(cfg *config.Config, path string) (*xsi.XSI, error) {
	opts, err := cfg.ToOptions()
	if err != nil {
		return nil, err
	}
	opts.Log = logger.Log

	x, err := xsi.ParseFile(path, opts)
	if err != nil {
		if x != nil && errors.Is(err, xsi.ErrTruncated) {
			logger.Log.Warn("file is truncated, using partial scene", zap.String("file", path))
			return x, nil
		}
		return nil, err
	}
	return x, nil
}

func mustLoad(cfg *config.Config, path string) *xsi.XSI {
	x, err := load(cfg, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return x
}

func cmdInfo(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: xsitool info <file.xsi>")
		os.Exit(1)
	}

	x := mustLoad(cfg, args[0])

	frames := x.AllFrames()
	var meshCount, vertexCount, faceCount, materialCount, boneCount, animatedCount int
	for _, f := range frames {
		if f.IsBone {
			boneCount++
		}
		if len(f.AnimationKeys) > 0 {
			animatedCount++
		}
		if f.Mesh == nil {
			continue
		}
		meshCount++
		vertexCount += len(f.Mesh.Vertices)
		faceCount += len(f.Mesh.Faces)
		_, materials := f.Mesh.MaterialIndices()
		materialCount += len(materials)
	}

	fmt.Printf("Scene:     %s\n", args[0])
	fmt.Printf("Frames:    %d\n", len(frames))
	fmt.Printf("Meshes:    %d (%d vertices, %d faces)\n", meshCount, vertexCount, faceCount)
	fmt.Printf("Materials: %d\n", materialCount)
	fmt.Printf("Lights:    %d\n", len(x.Lights))
	fmt.Printf("Cameras:   %d\n", len(x.Cameras))
	fmt.Printf("Animated:  %d frames\n", animatedCount)
	fmt.Printf("Bones:     %d (%d envelopes)\n", boneCount, x.EnvelopeCount())

	if lo, hi, ok := worldBounds(x); ok {
		fmt.Println()
		fmt.Printf("Bounds min: %8.3f %8.3f %8.3f\n", lo.X, lo.Y, lo.Z)
		fmt.Printf("Bounds max: %8.3f %8.3f %8.3f\n", hi.X, hi.Y, hi.Z)
	}
}

// worldBounds returns the axis-aligned bounds of all mesh geometry in
// world space, or ok=false for a scene without vertices.
func worldBounds(x *xsi.XSI) (lo, hi math.Vec3, ok bool) {
	for _, f := range x.AllFrames() {
		if f.Mesh == nil || len(f.Mesh.Vertices) == 0 {
			continue
		}
		world := f.WorldTransform()
		for _, v := range f.Mesh.Vertices {
			p := world.TransformPoint(v)
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			lo = lo.Min(p)
			hi = hi.Max(p)
		}
	}
	return lo, hi, ok
}

func cmdTree(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: xsitool tree <file.xsi>")
		os.Exit(1)
	}

	x := mustLoad(cfg, args[0])
	for _, frame := range x.Frames {
		printFrame(frame, 0)
	}
}

func printFrame(f *xsi.Frame, depth int) {
	var tags []string
	if f.Mesh != nil {
		tags = append(tags, fmt.Sprintf("mesh:%dv/%df", len(f.Mesh.Vertices), len(f.Mesh.Faces)))
	}
	if f.IsBone {
		tags = append(tags, "bone")
	}
	if len(f.AnimationKeys) > 0 {
		tags = append(tags, fmt.Sprintf("anim:%d", len(f.AnimationKeys)))
	}
	if len(f.Envelopes) > 0 {
		tags = append(tags, fmt.Sprintf("skin:%d", len(f.Envelopes)))
	}

	line := strings.Repeat("  ", depth) + f.Name
	if len(tags) > 0 {
		line += " [" + strings.Join(tags, " ") + "]"
	}
	fmt.Println(line)

	for _, sub := range f.Frames {
		printFrame(sub, depth+1)
	}
}

func cmdValidate(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: xsitool validate <file.xsi>...")
		os.Exit(1)
	}

	failed := 0
	for _, path := range args {
		opts, err := cfg.ToOptions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts.Log = logger.Log

		if _, err := xsi.ParseFile(path, opts); err != nil {
			fmt.Printf("FAIL %s: %v\n", path, err)
			failed++
		} else {
			fmt.Printf("ok   %s\n", path)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d files failed\n", failed, len(args))
		os.Exit(1)
	}
}

func cmdRewrite(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("rewrite", flag.ExitOnError)
	noLights := fs.Bool("no-lights", false, "Drop lights")
	noCameras := fs.Bool("no-cameras", false, "Drop cameras")
	noAnims := fs.Bool("no-anims", false, "Drop animation keys")
	noEnvelopes := fs.Bool("no-envelopes", false, "Drop skinning envelopes")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: xsitool rewrite [options] <in.xsi> <out.xsi>")
		os.Exit(1)
	}

	// Dropping whole block categories is cheapest at parse time, via the
	// reader's skip set.
	if *noLights {
		cfg.Parse.SkipBlocks = append(cfg.Parse.SkipBlocks, xsi.PatternLight.String())
	}
	if *noCameras {
		cfg.Parse.SkipBlocks = append(cfg.Parse.SkipBlocks, xsi.PatternCamera.String())
	}
	if *noAnims {
		cfg.Parse.SkipBlocks = append(cfg.Parse.SkipBlocks, xsi.PatternAnimationSet.String())
	}
	if *noEnvelopes {
		cfg.Parse.SkipBlocks = append(cfg.Parse.SkipBlocks, xsi.PatternEnvelopeList.String())
	}

	x := mustLoad(cfg, fs.Arg(0))

	if err := xsi.WriteFile(x, fs.Arg(1)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", fs.Arg(1))
}
